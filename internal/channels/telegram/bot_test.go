package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/reminder"
)

type fakeSender struct {
	sent       []tgbotapi.MessageConfig
	failMarkup bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failMarkup && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

type fakeController struct {
	dismissed bool
}

func (f *fakeController) ActiveUser() string { return "alice" }

func (f *fakeController) NextDose() (reminder.Dose, bool) {
	return reminder.Dose{PatientName: "Grandma", MedicineName: "Aspirin", DoseTime: "13:30"}, true
}

func (f *fakeController) Reminder() reminder.Snapshot {
	return reminder.Snapshot{State: reminder.StateArmed}
}

func (f *fakeController) Dismiss() bool {
	f.dismissed = true
	return true
}

func command(text string, userID int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 42},
		From:     &tgbotapi.User{ID: userID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func TestBot_Send(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, Config{ChatID: 99}, &fakeController{}, zap.NewNop())
	assert.Equal(t, "telegram", b.Name())

	require.NoError(t, b.Send(context.Background(), "MediTime", "Grandma: Take Aspirin now"))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(99), api.sent[0].ChatID)
	assert.Equal(t, "*MediTime*\nGrandma: Take Aspirin now", api.sent[0].Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, api.sent[0].ParseMode)
}

func TestBot_SendFallsBackToPlainText(t *testing.T) {
	api := &fakeSender{failMarkup: true}
	b := newBot(api, Config{ChatID: 99}, &fakeController{}, zap.NewNop())

	require.NoError(t, b.Send(context.Background(), "MediTime", "body"))
	require.Len(t, api.sent, 1)
	assert.Empty(t, api.sent[0].ParseMode)
}

func TestBot_SendHonoursContext(t *testing.T) {
	b := newBot(&fakeSender{}, Config{}, &fakeController{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Send(ctx, "t", "b"), context.Canceled)
}

func TestBot_Commands(t *testing.T) {
	api := &fakeSender{}
	ctrl := &fakeController{}
	b := newBot(api, Config{}, ctrl, zap.NewNop())

	require.NoError(t, b.handleUpdate(command("/next", 7)))
	require.NoError(t, b.handleUpdate(command("/dismiss", 7)))
	require.NoError(t, b.handleUpdate(command("/bogus", 7)))

	require.Len(t, api.sent, 3)
	assert.Equal(t, int64(42), api.sent[0].ChatID)
	assert.Equal(t, "Next dose: Aspirin for Grandma at 01:30 PM", api.sent[0].Text)
	assert.Equal(t, "Reminder dismissed.", api.sent[1].Text)
	assert.True(t, ctrl.dismissed)
	assert.Contains(t, api.sent[2].Text, "Unknown command")
}

func TestBot_IgnoresPlainText(t *testing.T) {
	api := &fakeSender{}
	b := newBot(api, Config{}, &fakeController{}, zap.NewNop())

	update := tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 1}}}
	require.NoError(t, b.handleUpdate(update))
	assert.Empty(t, api.sent)
}

func TestBot_AllowList(t *testing.T) {
	api := &fakeSender{}
	ctrl := &fakeController{}
	b := newBot(api, Config{AllowList: []int64{7}}, ctrl, zap.NewNop())

	require.NoError(t, b.handleUpdate(command("/dismiss", 8)))
	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0].Text, "not authorized")
	assert.False(t, ctrl.dismissed)
}
