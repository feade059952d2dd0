package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deliverability/internal/model"
)

// insertedComplaintRow echoes the INSERT arguments back as the returned row
// and exposes them through the returned pointer.
func insertedComplaintRow(db *mockDB) *[]any {
	var args []any
	db.On("QueryRow", mock.Anything, sqlContaining("INSERT INTO email_complaints"), mock.Anything).
		Run(func(a mock.Arguments) { args = a.Get(2).([]any) }).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = args[0].(string)
			*(dest[1].(*string)) = args[1].(string)
			*(dest[2].(*string)) = args[2].(string)
			*(dest[3].(*string)) = args[3].(string)
			*(dest[4].(**string)) = args[4].(*string)
			*(dest[5].(**model.ComplaintDetails)) = args[5].(*model.ComplaintDetails)
			*(dest[6].(*time.Time)) = args[6].(time.Time)
			return nil
		}})
	return &args
}

func newTestComplaintService(db DB, store *suppressionStore, rc RecomputeTrigger) *ComplaintService {
	svc := NewComplaintService(db, NewSuppressionService(store), rc, zerolog.Nop())
	svc.now = func() time.Time { return repNow }
	return svc
}

// ---------- ProcessComplaint ----------

func TestComplaintService_ProcessComplaint_AlwaysSuppresses(t *testing.T) {
	for _, source := range []string{model.ComplaintFeedbackLoop, model.ComplaintAbuseReport, model.ComplaintManual, ""} {
		t.Run("source="+source, func(t *testing.T) {
			db := &mockDB{}
			store := newSuppressionStore()
			rc := &recordingRecompute{}
			svc := newTestComplaintService(db, store, rc)
			insertedComplaintRow(db)

			c, err := svc.ProcessComplaint(context.Background(), ComplaintInput{
				EmailDomainID: "dom-1", RecipientEmail: "Angry@Example.com", Source: source,
			})
			require.NoError(t, err)

			assert.Equal(t, "angry@example.com", c.RecipientEmail)
			assert.Equal(t, 1, store.count("dom-1", "angry@example.com", model.SuppressionComplaint))
			assert.Equal(t, []string{"dom-1"}, rc.calls)
		})
	}
}

func TestComplaintService_ProcessComplaint_DefaultsToManual(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	svc := newTestComplaintService(db, store, &recordingRecompute{})
	insertedComplaintRow(db)

	c, err := svc.ProcessComplaint(context.Background(), ComplaintInput{EmailDomainID: "dom-1", RecipientEmail: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintManual, c.ComplaintType)

	row := store.rows[store.key("dom-1", "a@example.com")]
	assert.Equal(t, "Complaint from manual", *row.Reason)
}

func TestComplaintService_ProcessComplaint_OverwritesEarlierSuppression(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	svc := newTestComplaintService(db, store, &recordingRecompute{})
	insertedComplaintRow(db)

	_, err := NewSuppressionService(store).Add(context.Background(), "dom-1", "a@example.com", model.SuppressionManual, nil)
	require.NoError(t, err)

	_, err = svc.ProcessComplaint(context.Background(), ComplaintInput{EmailDomainID: "dom-1", RecipientEmail: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.count("dom-1", "a@example.com", model.SuppressionComplaint))
	assert.Equal(t, 0, store.count("dom-1", "a@example.com", model.SuppressionManual))
}

func TestComplaintService_ProcessComplaint_RecomputeFailureIsNotFatal(t *testing.T) {
	db := &mockDB{}
	svc := newTestComplaintService(db, newSuppressionStore(), &recordingRecompute{err: errors.New("boom")})
	insertedComplaintRow(db)

	c, err := svc.ProcessComplaint(context.Background(), ComplaintInput{EmailDomainID: "dom-1", RecipientEmail: "a@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
}

func TestComplaintService_ProcessComplaint_InvalidSource(t *testing.T) {
	svc := newTestComplaintService(&mockDB{}, newSuppressionStore(), &recordingRecompute{})

	_, err := svc.ProcessComplaint(context.Background(), ComplaintInput{
		EmailDomainID: "dom-1", RecipientEmail: "a@example.com", Source: "carrier-pigeon",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComplaintService_ProcessComplaint_UnknownDomain(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	svc := newTestComplaintService(db, store, &recordingRecompute{})
	db.On("QueryRow", mock.Anything, sqlContaining("INSERT INTO email_complaints"), mock.Anything).
		Return(errRow(fkViolation("email_complaints_email_domain_id_fkey")))

	_, err := svc.ProcessComplaint(context.Background(), ComplaintInput{
		EmailDomainID: "dom-404", RecipientEmail: "angry@example.com", Source: model.ComplaintManual,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.rows)
}

// ---------- ProcessAbuseReport ----------

func TestComplaintService_ProcessAbuseReport(t *testing.T) {
	db := &mockDB{}
	store := newSuppressionStore()
	svc := newTestComplaintService(db, store, &recordingRecompute{})
	args := insertedComplaintRow(db)

	c, err := svc.ProcessAbuseReport(context.Background(), "dom-1", "a@example.com", map[string]string{"ticket": "ABUSE-42"})
	require.NoError(t, err)

	assert.Equal(t, model.ComplaintAbuseReport, c.ComplaintType)
	details := (*args)[5].(*model.ComplaintDetails)
	require.NotNil(t, details)
	assert.Equal(t, "ABUSE-42", details.Extra["ticket"])
	assert.Equal(t, 1, store.count("dom-1", "a@example.com", model.SuppressionComplaint))
}

// ---------- ListComplaints / threshold ----------

func TestComplaintService_ListComplaints(t *testing.T) {
	db := &mockDB{}
	svc := newTestComplaintService(db, newSuppressionStore(), &recordingRecompute{})

	db.On("Query", mock.Anything, sqlContaining("FROM email_complaints", "ORDER BY complained_at DESC"), []any{"dom-1", 5}).
		Return(newMockRows(
			func(dest ...any) error { *(dest[0].(*string)) = "c-2"; return nil },
			func(dest ...any) error { *(dest[0].(*string)) = "c-1"; return nil },
		), nil)

	out, err := svc.ListComplaints(context.Background(), "dom-1", 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c-2", out[0].ID)
}

func TestComplaintService_CheckComplaintRateThreshold(t *testing.T) {
	db := &mockDB{}
	svc := newTestComplaintService(db, newSuppressionStore(), &recordingRecompute{})
	db.On("QueryRow", mock.Anything, sqlContaining("SELECT total_sent, complaint_rate"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*int)) = 1000
			*(dest[1].(*int)) = 20
			return nil
		}})

	res, err := svc.CheckComplaintRateThreshold(context.Background(), "dom-1", 0.001)
	require.NoError(t, err)
	assert.True(t, res.Exceeded)
	assert.InDelta(t, 0.002, res.Rate, 1e-9)
}
