package telegram

import "time"

const (
	pollTimeout       = 60
	pendingCodeTTL    = 10 * time.Minute
	minFreeCodeLength = 6
	recentTaskCount   = 3
	startAuthPrefix   = "auth_"
)

// Callback data
const (
	cbStartAuth      = "start_auth"
	cbStartTasks     = "start_tasks"
	cbStartHelp      = "start_help"
	cbAuthEnterCode  = "auth_enter_code"
	cbViewTasks      = "view_tasks"
	cbViewProfile    = "view_profile"
	cbUpdateCancel   = "update_cancel"
	cbLeaveConfirm   = "leave_confirm"
	cbLeaveCancel    = "leave_cancel"
	cbUpdateTaskPref = "update_task_"
	cbStatusPrefix   = "status_"
	cbCompletePrefix = "complete_"
)

const (
	msgGenericError = "❌ Something went wrong. Please try again later."
	msgNotLinked    = "🔐 <b>Not Authenticated</b>\n\n" +
		"Link your Telegram account first.\n" +
		"Use <code>/auth &lt;code&gt;</code> with the code from your quest admin."
	msgAuthUsage = "🔑 <b>TaskQuest Authentication</b>\n\n" +
		"Please provide your authentication code.\n\n" +
		"<b>Usage:</b> <code>/auth &lt;code&gt;</code>\n\n" +
		"<b>Examples:</b>\n" +
		"• <code>/auth ADM123ABC</code> - admin code\n" +
		"• <code>/auth USR456DEF</code> - user code\n\n" +
		"💡 Get your code from your quest admin or the TaskQuest dashboard."
	msgEnterCode    = "🔑 <b>Enter Quest Code</b>\n\nSend your code in the next message."
	msgNoTasks      = "📭 You have no tasks assigned yet."
	msgNoTasksToSet = "❌ You have no tasks to update."
	msgTaskNotFound = "❌ Task not found. Use /tasks to see your task numbers."
	msgTaskUsage    = "Use <code>/task &lt;number&gt;</code>, for example <code>/task 1</code>."
	msgUpdateCancel = "❌ Task update cancelled."
	msgLeaveCancel  = "↩️ Leave cancelled. You remain in your quests."
	msgUnknownText  = "🤔 I did not understand that. Try /help to see what I can do."

	helpText = "🤖 <b>TaskQuest Bot Help</b>\n\n" +
		"/start - welcome message\n" +
		"/auth &lt;code&gt; - link your account with a quest code\n" +
		"/tasks - your tasks and their status\n" +
		"/task &lt;number&gt; - details of one task\n" +
		"/update - change a task status\n" +
		"/info - your profile and task summary\n" +
		"/leave - leave your quests\n" +
		"/help - this message\n" +
		"/about - about TaskQuest\n\n" +
		"💡 You can also type <code>task 1 done</code> to complete a task."
)
