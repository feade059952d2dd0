package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deliverability/internal/model"
)

// insertedBounceRow echoes the INSERT arguments back as the returned row.
func insertedBounceRow(db *mockDB) {
	var args []any
	db.On("QueryRow", mock.Anything, sqlContaining("INSERT INTO email_bounces"), mock.Anything).
		Run(func(a mock.Arguments) { args = a.Get(2).([]any) }).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = args[0].(string)
			*(dest[1].(*string)) = args[1].(string)
			*(dest[2].(**string)) = args[2].(*string)
			*(dest[3].(*string)) = args[3].(string)
			*(dest[4].(*string)) = args[4].(string)
			*(dest[5].(**string)) = args[5].(*string)
			*(dest[6].(**string)) = args[6].(*string)
			*(dest[7].(*bool)) = false
			*(dest[8].(*time.Time)) = args[7].(time.Time)
			return nil
		}})
}

func newTestBounceService(db DB, store *suppressionStore, rc RecomputeTrigger) *BounceService {
	svc := NewBounceService(db, NewSuppressionService(store), rc, zerolog.Nop())
	svc.now = func() time.Time { return repNow }
	return svc
}

// ---------- ProcessBounce ----------

func TestBounceService_ProcessBounce_HardBounceSuppresses(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	rc := &recordingRecompute{}
	svc := newTestBounceService(db, store, rc)
	insertedBounceRow(db)
	db.On("Exec", mock.Anything, sqlContaining("SET processed = true"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	code := "550"
	b, err := svc.ProcessBounce(context.Background(), BounceInput{
		EmailDomainID: "dom-1", RecipientEmail: " Gone@Example.com", BounceType: model.BounceHard, BounceCode: &code,
	})
	require.NoError(t, err)

	assert.Equal(t, "gone@example.com", b.RecipientEmail)
	assert.True(t, b.Processed)
	assert.Equal(t, 1, store.count("dom-1", "gone@example.com", model.SuppressionBounce))
	assert.Equal(t, []string{"dom-1"}, rc.calls)

	row := store.rows[store.key("dom-1", "gone@example.com")]
	require.NotNil(t, row.Reason)
	assert.Equal(t, "Hard bounce: 550", *row.Reason)
	db.AssertExpectations(t)
}

func TestBounceService_ProcessBounce_RepeatedHardBounceKeepsOneSuppression(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	svc := newTestBounceService(db, store, &recordingRecompute{})
	insertedBounceRow(db)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	for range 3 {
		_, err := svc.ProcessBounce(context.Background(), BounceInput{
			EmailDomainID: "dom-1", RecipientEmail: "gone@example.com", BounceType: model.BounceHard,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.count("dom-1", "gone@example.com", model.SuppressionBounce))
	assert.Len(t, store.rows, 1)
}

func TestBounceService_ProcessBounce_SoftAndTransientDoNotSuppress(t *testing.T) {
	for _, typ := range []string{model.BounceSoft, model.BounceTransient} {
		t.Run(typ, func(t *testing.T) {
			db := &mockDB{}
			store := newSuppressionStore()
			rc := &recordingRecompute{}
			svc := newTestBounceService(db, store, rc)
			insertedBounceRow(db)
			db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

			_, err := svc.ProcessBounce(context.Background(), BounceInput{
				EmailDomainID: "dom-1", RecipientEmail: "full@example.com", BounceType: typ,
			})
			require.NoError(t, err)
			assert.Empty(t, store.rows)
			assert.Len(t, rc.calls, 1)
		})
	}
}

func TestHardBounceReason(t *testing.T) {
	msg := "mailbox does not exist"
	code := "5.1.1"
	empty := ""
	assert.Equal(t, msg, hardBounceReason(&code, &msg))
	assert.Equal(t, "Hard bounce: 5.1.1", hardBounceReason(&code, &empty))
	assert.Equal(t, "Hard bounce: unknown", hardBounceReason(nil, nil))
}

func TestBounceService_ProcessBounce_RecomputeFailureLeavesUnprocessed(t *testing.T) {
	db := &mockDB{}
	svc := newTestBounceService(db, newSuppressionStore(), &recordingRecompute{err: errors.New("temporal down")})
	insertedBounceRow(db)

	b, err := svc.ProcessBounce(context.Background(), BounceInput{
		EmailDomainID: "dom-1", RecipientEmail: "a@example.com", BounceType: model.BounceSoft,
	})
	require.NoError(t, err)
	assert.False(t, b.Processed)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestBounceService_ProcessBounce_Validation(t *testing.T) {
	svc := newTestBounceService(&mockDB{}, newSuppressionStore(), &recordingRecompute{})

	_, err := svc.ProcessBounce(context.Background(), BounceInput{EmailDomainID: "dom-1", RecipientEmail: "nope", BounceType: model.BounceHard})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ProcessBounce(context.Background(), BounceInput{EmailDomainID: "dom-1", RecipientEmail: "a@example.com", BounceType: "permanent"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ProcessBounce(context.Background(), BounceInput{EmailDomainID: "dom-1", RecipientEmail: "a@", BounceType: model.BounceHard})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBounceService_ProcessBounce_UnknownDomain(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	rc := &recordingRecompute{}
	svc := newTestBounceService(db, store, rc)
	db.On("QueryRow", mock.Anything, sqlContaining("INSERT INTO email_bounces"), mock.Anything).
		Return(errRow(fkViolation("email_bounces_email_domain_id_fkey")))

	_, err := svc.ProcessBounce(context.Background(), BounceInput{
		EmailDomainID: "dom-404", RecipientEmail: "gone@example.com", BounceType: model.BounceHard,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.rows)
	assert.Empty(t, rc.calls)
}

func TestBounceService_ProcessBounce_UnknownAccount(t *testing.T) {
	db := &mockDB{}
	svc := newTestBounceService(db, newSuppressionStore(), &recordingRecompute{})
	db.On("QueryRow", mock.Anything, sqlContaining("INSERT INTO email_bounces"), mock.Anything).
		Return(errRow(fkViolation("email_bounces_email_account_id_fkey")))

	acct := "acct-404"
	_, err := svc.ProcessBounce(context.Background(), BounceInput{
		EmailDomainID: "dom-1", EmailAccountID: &acct, RecipientEmail: "gone@example.com", BounceType: model.BounceSoft,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "email account not found", MessageOf(err))
}

// ---------- ListBounces ----------

func TestBounceService_ListBounces_DefaultLimit(t *testing.T) {
	db := &mockDB{}
	svc := newTestBounceService(db, newSuppressionStore(), &recordingRecompute{})

	db.On("Query", mock.Anything, sqlContaining("ORDER BY bounced_at DESC LIMIT $2"), []any{"dom-1", DefaultListLimit}).
		Return(newMockRows(func(dest ...any) error {
			*(dest[0].(*string)) = "b-1"
			*(dest[1].(*string)) = "dom-1"
			*(dest[3].(*string)) = "a@example.com"
			*(dest[4].(*string)) = model.BounceHard
			*(dest[7].(*bool)) = true
			return nil
		}), nil)

	out, err := svc.ListBounces(context.Background(), "dom-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b-1", out[0].ID)
	assert.True(t, out[0].Processed)
	db.AssertExpectations(t)
}

// ---------- CheckBounceRateThreshold ----------

func TestBounceService_CheckBounceRateThreshold(t *testing.T) {
	tests := []struct {
		name     string
		sent     int
		rate     int
		err      error
		exceeded bool
		want     float64
	}{
		{"above threshold", 100, 600, nil, true, 0.06},
		{"at threshold", 100, 500, nil, false, 0.05},
		{"nothing sent", 0, 900, nil, false, 0},
		{"no metric today", 0, 0, pgx.ErrNoRows, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			svc := newTestBounceService(db, newSuppressionStore(), &recordingRecompute{})
			db.On("QueryRow", mock.Anything, sqlContaining("SELECT total_sent, bounce_rate"), []any{"dom-1", "2026-05-10"}).
				Return(&mockRow{scanFunc: func(dest ...any) error {
					if tt.err != nil {
						return tt.err
					}
					*(dest[0].(*int)) = tt.sent
					*(dest[1].(*int)) = tt.rate
					return nil
				}})

			res, err := svc.CheckBounceRateThreshold(context.Background(), "dom-1", 0.05)
			require.NoError(t, err)
			assert.Equal(t, tt.exceeded, res.Exceeded)
			assert.InDelta(t, tt.want, res.Rate, 1e-9)
		})
	}
}
