package router

const (
	welcomeText = "Welcome to PrayPalBot, your Prayer Times Reminder Bot! Here's how you can use me:\n\n" +
		"/start - Initialize PrayPalBot and set up your prayer times reminder.\n" +
		"/showsettings - View your current settings for location and lead time.\n" +
		"/todayprayertimes - Get today's prayer times for your location.\n" +
		"/nextsalat - Shows the next upcoming prayer time reminder.\n\n" +
		"You can start by sending me your location, for example, 'Singapore'."

	locationSetText = "Location set. If you want to receive a reminder before the exact prayer time, please send the lead time in minutes. Otherwise, send 'skip' to continue."
	leadSkippedText = "Lead time skipped. Reminders will be sent at the exact prayer times."
	leadSetFormat   = "Lead time set to %d minutes."
	leadInvalidText = "Invalid lead time. Please send a valid number of minutes or send 'skip' to set no lead time."
	leadTooLongFmt  = "Lead time must be at most %d minutes. Please send a smaller number or send 'skip'."

	noSettingsText      = "You haven't set your location or prayer time preferences yet. Use the /start command to get started!"
	noLocationText      = "You haven't set your location yet. To receive prayer times and reminders, please set your location using the /start command."
	noLocationTodayText = "You haven't set your location yet. To receive prayer times, please set your location using the /start command."
	noUpcomingText      = "You don't have any upcoming prayer reminders. Use the /start command to get started!"
	noTimesTodayFormat  = "Could not retrieve prayer times for today (%s). Please try again later."
	unknownCommandText  = "Unknown command. Try /help"
	busyText            = "Busy, please try again in a moment."
	internalErrorText   = "Something went wrong. Please try again later."
)
