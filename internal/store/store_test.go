package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/config"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/schedule"
)

type backend struct {
	name string
	open func(t *testing.T) ScheduleStore
}

func backends() []backend {
	return []backend{
		{"badger", func(t *testing.T) ScheduleStore {
			st, err := NewBadger("")
			require.NoError(t, err)
			return st
		}},
		{"sqlite", func(t *testing.T) ScheduleStore {
			st, err := NewSQL(filepath.Join(t.TempDir(), "meditime.db"))
			require.NoError(t, err)
			return st
		}},
	}
}

// forEachBackend runs fn against a fresh store of every backend
func forEachBackend(t *testing.T, fn func(t *testing.T, st ScheduleStore)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			t.Cleanup(func() { st.Close() })
			fn(t, st)
		})
	}
}

func aspirin(patient string, times ...string) schedule.Schedule {
	m := schedule.NewMedicine()
	m.MedicineName = "Aspirin"
	m.SchedulingMethod = schedule.MethodDaysPerWeek
	m.SelectedDays = []string{"Monday"}
	m.TimesPerDay = schedule.Count(len(times))
	m.DoseTimes = times
	m.StartDate = "2024-03-01"
	m.EndDate = "2024-03-31"
	return schedule.Schedule{PatientName: patient, Medicines: []schedule.Medicine{m}}
}

func TestStore_Users(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()

		users, err := st.GetUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		for _, name := range []string{"carol", "alice", "bob"} {
			u, err := st.CreateUser(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, name, u.ID)
			assert.Equal(t, name, u.Name)
		}

		_, err = st.CreateUser(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)

		_, err = st.CreateUser(ctx, "   ")
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = st.CreateUser(ctx, "eve\x00")
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		users, err = st.GetUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "carol", users[0].ID, "creation order is kept")
		assert.Equal(t, "bob", users[2].ID)
	})
}

func TestStore_SaveAndListSchedules(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()
		_, err := st.CreateUser(ctx, "alice")
		require.NoError(t, err)

		first, err := st.SaveSchedule(ctx, "alice", aspirin("Grandma", "08:00"))
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		_, err = st.SaveSchedule(ctx, "alice", aspirin("Grandpa", "09:00", "21:00"))
		require.NoError(t, err)

		list, err := st.GetSchedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, "Grandpa", list[1].PatientName)
		assert.Equal(t, []string{"09:00", "21:00"}, list[1].Medicines[0].DoseTimes)

		_, err = st.SaveSchedule(ctx, "nobody", aspirin("X", "08:00"))
		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

		other, err := st.GetSchedules(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestStore_DeleteSchedules(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()
		_, err := st.CreateUser(ctx, "alice")
		require.NoError(t, err)

		a, err := st.SaveSchedule(ctx, "alice", aspirin("Grandma", "08:00"))
		require.NoError(t, err)
		_, err = st.SaveSchedule(ctx, "alice", aspirin("Grandma", "12:00"))
		require.NoError(t, err)
		_, err = st.SaveSchedule(ctx, "alice", aspirin("", "13:00"))
		require.NoError(t, err)
		_, err = st.SaveSchedule(ctx, "alice", aspirin("Grandpa", "14:00"))
		require.NoError(t, err)

		require.NoError(t, st.DeleteSchedule(ctx, a.ID, "alice"))
		assert.ErrorIs(t, st.DeleteSchedule(ctx, a.ID, "alice"), apperrors.ErrScheduleNotFound)

		n, err := st.DeleteSchedulesByPatient(ctx, "alice", "Grandma")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = st.DeleteSchedulesByPatient(ctx, "alice", schedule.UnnamedPatient)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		list, err := st.GetSchedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Grandpa", list[0].PatientName)

		require.NoError(t, st.DeleteAllSchedules(ctx, "alice"))
		list, err = st.GetSchedules(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestStore_DeleteUserCascades(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()
		for _, name := range []string{"alice", "bob"} {
			_, err := st.CreateUser(ctx, name)
			require.NoError(t, err)
			_, err = st.SaveSchedule(ctx, name, aspirin(name, "08:00"))
			require.NoError(t, err)
			require.NoError(t, st.SaveFormData(ctx, name, schedule.NewDraft()))
		}
		require.NoError(t, st.SetLastActiveUser(ctx, "alice"))

		require.NoError(t, st.DeleteUser(ctx, "alice"))
		assert.ErrorIs(t, st.DeleteUser(ctx, "alice"), apperrors.ErrUserNotFound)

		list, err := st.GetSchedules(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, list)
		d, err := st.GetFormData(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, d)

		list, err = st.GetSchedules(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, list, 1, "other users are untouched")

		last, err := st.LastActiveUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bob", last)

		require.NoError(t, st.DeleteUser(ctx, "bob"))
		last, err = st.LastActiveUser(ctx)
		require.NoError(t, err)
		assert.Empty(t, last)
	})
}

func TestStore_FormData(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()
		_, err := st.CreateUser(ctx, "alice")
		require.NoError(t, err)

		d, err := st.GetFormData(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, d)

		draft := schedule.NewDraft()
		draft.PatientName = "Grandma"
		require.NoError(t, st.SaveFormData(ctx, "alice", draft))

		draft.PatientName = "Grandpa"
		require.NoError(t, st.SaveFormData(ctx, "alice", draft))

		d, err = st.GetFormData(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "Grandpa", d.PatientName)
		assert.Len(t, d.Medicines, 1)

		require.NoError(t, st.DeleteFormData(ctx, "alice"))
		d, err = st.GetFormData(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, d)
	})
}

func TestStore_ExportImport(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()
		_, err := st.CreateUser(ctx, "alice")
		require.NoError(t, err)
		_, err = st.CreateUser(ctx, "bob")
		require.NoError(t, err)
		saved, err := st.SaveSchedule(ctx, "bob", aspirin("Grandpa", "09:00"))
		require.NoError(t, err)
		require.NoError(t, st.SaveFormData(ctx, "alice", schedule.NewDraft()))
		require.NoError(t, st.SetLastActiveUser(ctx, "bob"))

		snap, err := st.Export(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, snap.Users)
		assert.Len(t, snap.Schedules["bob"], 1)
		assert.Contains(t, snap.FormDataByUser, "alice")
		assert.Equal(t, "bob", snap.LastActiveUser)

		require.NoError(t, st.Clear(ctx))
		users, err := st.GetUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		require.NoError(t, st.Import(ctx, snap))

		users, err = st.GetUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
		list, err := st.GetSchedules(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, saved.ID, list[0].ID)
		last, err := st.LastActiveUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bob", last)

		assert.ErrorIs(t, st.Import(ctx, nil), apperrors.ErrBadRequest)
	})
}

func seedAlice(t *testing.T, st ScheduleStore) schedule.Schedule {
	t.Helper()
	ctx := context.Background()
	_, err := st.CreateUser(ctx, "alice")
	require.NoError(t, err)
	saved, err := st.SaveSchedule(ctx, "alice", aspirin("Grandma", "08:00"))
	require.NoError(t, err)
	require.NoError(t, st.SetLastActiveUser(ctx, "alice"))
	return saved
}

func assertOnlyAlice(t *testing.T, st ScheduleStore, saved schedule.Schedule) {
	t.Helper()
	ctx := context.Background()
	users, err := st.GetUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schedule.User{schedule.NewUser("alice")}, users)
	list, err := st.GetSchedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	last, err := st.LastActiveUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", last)
}

func TestStore_ImportRejectedKeepsContents(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		err  error
	}{
		{"duplicate user", &Snapshot{Users: []string{"bob", "bob"}}, apperrors.ErrDuplicateUser},
		{"invalid user name", &Snapshot{Users: []string{"bob", "eve\x00"}}, apperrors.ErrValidation},
		{"blank user name", &Snapshot{Users: []string{" "}}, apperrors.ErrValidation},
		{"schedules of unknown user", &Snapshot{
			Users:     []string{"bob"},
			Schedules: map[string][]schedule.Schedule{"carol": {aspirin("Grandpa", "09:00")}},
		}, apperrors.ErrBadRequest},
		{"draft of unknown user", &Snapshot{
			Users:          []string{"bob"},
			FormDataByUser: map[string]schedule.Draft{"carol": schedule.NewDraft()},
		}, apperrors.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachBackend(t, func(t *testing.T, st ScheduleStore) {
				saved := seedAlice(t, st)
				assert.ErrorIs(t, st.Import(context.Background(), tt.snap), tt.err)
				assertOnlyAlice(t, st, saved)
			})
		})
	}
}

// failingStore fails SaveSchedule for one schedule ID
type failingStore struct {
	ScheduleStore
	badID string
}

func (f *failingStore) SaveSchedule(ctx context.Context, userID string, s schedule.Schedule) (schedule.Schedule, error) {
	if s.ID == f.badID {
		return schedule.Schedule{}, apperrors.Storage(errors.New("disk full"), "save schedule")
	}
	return f.ScheduleStore.SaveSchedule(ctx, userID, s)
}

func TestStore_ImportStorageFailureRestores(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		saved := seedAlice(t, st)

		bad := aspirin("Grandpa", "09:00")
		bad.ID = "bad-1"
		snap := &Snapshot{
			Users:     []string{"bob"},
			Schedules: map[string][]schedule.Schedule{"bob": {bad}},
		}

		err := importInto(context.Background(), &failingStore{ScheduleStore: st, badID: "bad-1"}, snap)
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		assertOnlyAlice(t, st, saved)
	})
}

func TestStore_ImportNormalizesLegacyRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st ScheduleStore) {
		ctx := context.Background()

		rec, err := schedule.DecodeRecord([]byte(`{"id":"old-1","patientName":"Grandma","medicineName":"Aspirin","doseTime":"08:00"}`))
		require.NoError(t, err)
		require.Equal(t, schedule.KindLegacySingle, rec.Kind)

		snap := &Snapshot{
			Users:     []string{"alice"},
			Schedules: map[string][]schedule.Schedule{"alice": {rec.Normalize()}},
		}
		require.NoError(t, st.Import(ctx, snap))

		list, err := st.GetSchedules(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "old-1", list[0].ID)
		require.Len(t, list[0].Medicines, 1)
		assert.Equal(t, "Aspirin", list[0].Medicines[0].MedicineName)
		assert.Equal(t, []string{"08:00"}, list[0].Medicines[0].DoseTimes)
	})
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "open.db")

	st, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, st)
	require.NoError(t, st.Close())

	cfg.Storage.Backend = "etcd"
	_, err = Open(cfg, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}
