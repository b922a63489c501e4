package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"praypal/internal/prayertimes"
	"praypal/internal/reminder"
	kit "praypal/internal/transport"
	logx "praypal/pkg/logx"
)

func (r *Router) commandList() []command {
	return []command{
		{name: "start", description: "Set up your location and prayer reminders", handle: r.handleStart},
		{name: "showsettings", description: "Show your location and lead time", handle: r.handleShowSettings},
		{name: "todayprayertimes", description: "Today's prayer times for your location", handle: r.handleToday},
		{name: "nextsalat", description: "Your next prayer reminder", handle: r.handleNext},
		{name: "help", description: "How to use this bot", handle: r.handleHelp},
	}
}

func (r *Router) reply(ctx context.Context, req *Request, text string, opt *kit.SendOptions) error {
	_, err := r.adapter.SendText(ctx, req.Chat, text, opt)
	return err
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	r.conv.set(req.Chat.ChatID, stateAwaitLocation)
	return r.reply(ctx, req, welcomeText, nil)
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	return r.reply(ctx, req, welcomeText, nil)
}

// handleText continues the setup flow. Free text outside it is ignored.
func (r *Router) handleText(ctx context.Context, req *Request) error {
	switch r.conv.get(req.Chat.ChatID) {
	case stateAwaitLocation:
		return r.handleLocation(ctx, req)
	case stateAwaitLead:
		return r.handleLead(ctx, req)
	default:
		req.Logger.Debug("free text outside setup ignored")
		return nil
	}
}

func (r *Router) handleLocation(ctx context.Context, req *Request) error {
	id := req.Chat.ChatID
	location := reminder.Title(req.Text)
	if location == "" {
		return r.reply(ctx, req, welcomeText, nil)
	}

	// Validate against the provider before storing; the result is cached
	// for the Schedule call below.
	if _, err := r.fetcher.Fetch(ctx, location); err != nil {
		req.Logger.Info("location rejected", logx.String("location", location), logx.Err(err))
		return r.reply(ctx, req, prayertimes.UserMessage(err), nil)
	}
	if err := r.store.PutPreference(ctx, id, location, nil); err != nil {
		_ = r.reply(ctx, req, internalErrorText, nil)
		return fmt.Errorf("save location: %w", err)
	}
	if _, err := r.reminders.Schedule(ctx, id, location, nil); err != nil {
		req.Logger.Warn("schedule after location failed", logx.String("location", location), logx.Err(err))
		return r.reply(ctx, req, prayertimes.UserMessage(err), nil)
	}
	r.conv.set(id, stateAwaitLead)
	return r.reply(ctx, req, locationSetText, nil)
}

func (r *Router) handleLead(ctx context.Context, req *Request) error {
	id := req.Chat.ChatID
	lead, msg, ok := r.parseLead(req.Text)
	if !ok {
		return r.reply(ctx, req, msg, nil)
	}

	pref, found, err := r.store.GetPreference(ctx, id)
	if err != nil {
		_ = r.reply(ctx, req, internalErrorText, nil)
		return fmt.Errorf("load preference: %w", err)
	}
	r.conv.set(id, stateIdle)
	if !found || pref.Location == "" {
		return r.reply(ctx, req, noSettingsText, nil)
	}

	if err := r.store.PutPreference(ctx, id, pref.Location, lead); err != nil {
		_ = r.reply(ctx, req, internalErrorText, nil)
		return fmt.Errorf("save lead time: %w", err)
	}
	if _, err := r.reminders.Schedule(ctx, id, pref.Location, lead); err != nil {
		req.Logger.Warn("schedule after lead time failed", logx.String("location", pref.Location), logx.Err(err))
		return r.reply(ctx, req, prayertimes.UserMessage(err), nil)
	}
	return r.reply(ctx, req, msg, nil)
}

// parseLead accepts "skip" or a whole number of minutes in [0, MaxLeadTime].
// On failure msg is the re-prompt.
func (r *Router) parseLead(text string) (lead *int, msg string, ok bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "skip" {
		return nil, leadSkippedText, true
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return nil, leadInvalidText, false
	}
	if n > r.cfg.MaxLeadTime {
		return nil, fmt.Sprintf(leadTooLongFmt, r.cfg.MaxLeadTime), false
	}
	return &n, fmt.Sprintf(leadSetFormat, n), true
}

func (r *Router) handleShowSettings(ctx context.Context, req *Request) error {
	pref, found, err := r.store.GetPreference(ctx, req.Chat.ChatID)
	if err != nil {
		_ = r.reply(ctx, req, internalErrorText, nil)
		return err
	}
	switch {
	case !found:
		return r.reply(ctx, req, noSettingsText, nil)
	case pref.Location == "":
		return r.reply(ctx, req, noLocationText, nil)
	}

	var b strings.Builder
	b.WriteString("Your current settings:\n\n")
	fmt.Fprintf(&b, "* Location: %s\n", pref.Location)
	if pref.LeadTime != nil && *pref.LeadTime >= 0 {
		fmt.Fprintf(&b, "* Lead time: %d minutes\n", *pref.LeadTime)
	} else {
		b.WriteString("* Lead time: Not set (reminders at exact prayer time)\n")
	}
	if pref.Inactive() {
		b.WriteString("* Reminders: Paused (send /start to resume)\n")
	}
	return r.reply(ctx, req, b.String(), nil)
}

func (r *Router) handleToday(ctx context.Context, req *Request) error {
	pref, found, err := r.store.GetPreference(ctx, req.Chat.ChatID)
	if err != nil {
		_ = r.reply(ctx, req, internalErrorText, nil)
		return err
	}
	switch {
	case !found:
		return r.reply(ctx, req, noSettingsText, nil)
	case pref.Location == "":
		return r.reply(ctx, req, noLocationTodayText, nil)
	}

	snap, err := r.fetcher.Fetch(ctx, pref.Location)
	if err != nil {
		var qe *prayertimes.QueryError
		if !errors.As(err, &qe) {
			req.Logger.Warn("fetch prayer times failed", logx.String("location", pref.Location), logx.Err(err))
		}
		return r.reply(ctx, req, prayertimes.UserMessage(err), nil)
	}

	now := r.clock.Now()
	day, ok := snap.Today(now)
	if !ok {
		return r.reply(ctx, req, fmt.Sprintf(noTimesTodayFormat, now.In(snap.Zone()).Format(prayertimes.DateLayout)), nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Today's prayer times for *%s*:\n\n", escapeMarkdown(pref.Location))
	for _, e := range day.Entries {
		fmt.Fprintf(&b, "*%s*: %s\n", escapeMarkdown(reminder.Title(e.Prayer)), escapeMarkdown(e.Clock))
	}
	return r.reply(ctx, req, b.String(), &kit.SendOptions{ParseMode: "Markdown"})
}

func (r *Router) handleNext(ctx context.Context, req *Request) error {
	up, ok := r.reminders.Upcoming(req.Chat.ChatID)
	if !ok {
		return r.reply(ctx, req, noUpcomingText, nil)
	}
	prayerWord, prayerTitle := "prayer ", "Prayer "
	if strings.EqualFold(up.Prayer, prayertimes.Shurooq) {
		prayerWord, prayerTitle = "", ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your upcoming %sreminder:\n\n", prayerWord)
	fmt.Fprintf(&b, "* %sName: %s\n", prayerTitle, reminder.Title(up.Prayer))
	fmt.Fprintf(&b, "* Scheduled Time: %s\n", up.ScheduledTime)
	fmt.Fprintf(&b, "* Time Remaining: %s\n", up.TimeRemaining)
	return r.reply(ctx, req, b.String(), nil)
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escapeMarkdown escapes Telegram legacy Markdown entities.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
