package httpapi

func (s *Server) routes() {
	s.app.Get("/ping", s.ping)
	s.app.Get("/healthz", s.healthz)
	s.app.Get("/readyz", s.readyz)

	api := s.app.Group("/api")
	auth := AuthRequired(s.svc.Identity)
	admin := AdminRequired(s.access)

	api.Post("/auth/firebase", s.loginFirebase)
	api.Get("/auth/protected", auth, s.protected)
	api.Post("/auth/logout", s.logout)

	api.Get("/dashboard", auth, s.dashboard)

	codes := api.Group("/codes", auth)
	codes.Post("/generate-quest-code", s.generateQuestCode)
	codes.Post("/generate-user-codes", s.generateUserCodes)
	codes.Get("/quest/:questId/codes", s.listQuestCodes)
	codes.Post("/regenerate-code", s.regenerateCode)
	codes.Post("/redeem", admin, s.redeemCode)

	accounts := api.Group("/accounts", auth)
	accounts.Get("/", admin, s.listAccounts)
	accounts.Post("/", admin, s.createAccount)
	accounts.Get("/:id", s.getAccount)
	accounts.Patch("/:id", s.updateAccount)
	accounts.Delete("/:id", admin, s.deleteAccount)

	quests := api.Group("/quests", auth)
	quests.Get("/", s.listQuests)
	quests.Post("/", s.createQuest)
	quests.Post("/leave", s.leaveQuests)
	quests.Get("/:id", s.getQuest)
	quests.Patch("/:id", s.updateQuest)
	quests.Delete("/:id", s.deleteQuest)
	quests.Get("/:id/members", s.questMembers)
	quests.Post("/:id/invite-code", s.issueInviteCode)
	quests.Get("/:id/export.xlsx", s.exportQuest)
	quests.Post("/:id/sync-sheet", s.syncQuestSheet)

	tasks := api.Group("/tasks", auth)
	tasks.Get("/", s.listTasks)
	tasks.Post("/", s.createTask)
	tasks.Get("/:id", s.getTask)
	tasks.Patch("/:id", s.updateTask)
	tasks.Delete("/:id", s.deleteTask)
	tasks.Patch("/:id/status", s.updateTaskStatus)

	api.Get("/notifications", auth, s.notifications)
	api.Get("/bot/commands", auth, s.botCommands)
}
