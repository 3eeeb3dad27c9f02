package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReminder(kind Kind) Reminder {
	return Reminder{
		Kind:              kind,
		InstallmentID:     uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		ParentPaymentID:   10,
		ParentID:          4,
		Recipient:         Recipient{Name: "Ana Reyes", Email: "ana@example.com"},
		Amount:            33400,
		DueDate:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DaysRemaining:     3,
		InstallmentNumber: 1,
		TotalInstallments: 3,
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Contains(t, FormatAmount(33400, "USD"), "334")
	assert.Contains(t, FormatAmount(5, "EUR"), "0.05")
	assert.Contains(t, FormatAmount(100, "not-a-code"), "1")
}

func TestBodyPerKind(t *testing.T) {
	pre := Body(sampleReminder(KindPreDue), "USD")
	assert.Contains(t, pre, "Dear Ana Reyes")
	assert.Contains(t, pre, "due on 2024-01-01, in 3 days")

	over := sampleReminder(KindOverdue)
	over.DaysOverdue = 2
	over.GracePeriodEnd = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	body := Body(over, "USD")
	assert.Contains(t, body, "2 days overdue")
	assert.Contains(t, body, "2024-01-06")

	final := sampleReminder(KindGraceFinal)
	final.DaysOverdue = 5
	assert.Contains(t, Body(final, "USD"), "last day of the grace period")
	assert.True(t, strings.HasPrefix(Subject(final), "Final notice"))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestQueueDelivererEnqueuesReminder(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewQueueDeliverer(enq, "reminders")

	receipt, err := d.Deliver(context.Background(), sampleReminder(KindPreDue))
	require.NoError(t, err)
	require.True(t, receipt.Delivered)
	require.Equal(t, "task-1", receipt.ID)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskTypeDeliverReminder, enq.tasks[0].Type())

	var decoded Reminder
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, KindPreDue, decoded.Kind)
	require.Equal(t, int64(33400), decoded.Amount)
}

func TestQueueDelivererReportsEnqueueFailure(t *testing.T) {
	d := NewQueueDeliverer(&fakeEnqueuer{err: errors.New("redis down")}, "")
	receipt, err := d.Deliver(context.Background(), sampleReminder(KindOverdue))
	require.Error(t, err)
	require.False(t, receipt.Delivered)
}

func TestEmailSenderDeliver(t *testing.T) {
	sender := NewEmailSender(SMTPConfig{Host: "127.0.0.1", Port: 1025, From: "billing@example.com", Currency: "USD"}, nil)
	var sent *email.Email
	var gotAddr string
	sender.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		sent = e
		gotAddr = addr
		return nil
	}

	receipt, err := sender.Deliver(context.Background(), sampleReminder(KindPreDue))
	require.NoError(t, err)
	require.True(t, receipt.Delivered)
	require.Equal(t, "127.0.0.1:1025", gotAddr)
	require.Equal(t, []string{"ana@example.com"}, sent.To)
	require.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", sent.Headers.Get("X-Installment-ID"))

	noEmail := sampleReminder(KindPreDue)
	noEmail.Recipient.Email = ""
	_, err = sender.Deliver(context.Background(), noEmail)
	require.ErrorIs(t, err, ErrNoRecipient)
}

func TestEmailSenderHandleDeliverTask(t *testing.T) {
	sender := NewEmailSender(SMTPConfig{Host: "smtp", Port: 25}, nil)
	sender.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		return errors.New("connection refused")
	}

	task, err := NewDeliverTask(sampleReminder(KindOverdue))
	require.NoError(t, err)
	err = sender.HandleDeliverTask(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry), "transport failures are retried")

	bad := asynq.NewTask(TaskTypeDeliverReminder, []byte("{"))
	require.ErrorIs(t, sender.HandleDeliverTask(context.Background(), bad), asynq.SkipRetry)
}
