package bot

import (
	"fmt"

	"DailyPulse/db"
)

const (
	textNotRegistered = "Hi! To use this bot, open the activation link you received " +
		"from your group admin. If you don't have a link, ask your admin for one."
	textTokenNotFound = "This activation link is not valid. " +
		"Ask your admin for a current one."
	textTokenExpired = "This activation link has expired. " +
		"Ask your admin for a fresh one."
	textTokenConsumed = "This activation link has already been used by someone else. " +
		"Ask your admin for your own link."
	textWindowClosed = "There is no open report window right now. " +
		"I'll message you when the next one starts."
	textReportSaved = "Got it, your report for today is saved. You can resend it to replace it."
	textError       = "Something went wrong while handling your message. Please try again."
)

func textWelcome(g db.Group) string {
	return fmt.Sprintf(
		"Welcome to '%s'!\n\nYour account is active. Every day at %02d:%02d (%s) "+
			"I'll ask what you worked on; just reply with your report.",
		g.Name, g.CollectHour, g.CollectMinute, g.Timezone)
}

func textAlreadyActive(g db.Group) string {
	return fmt.Sprintf(
		"You are already activated in '%s'. Every day at %02d:%02d (%s) "+
			"I'll ask for your report; just reply with it.",
		g.Name, g.CollectHour, g.CollectMinute, g.Timezone)
}
