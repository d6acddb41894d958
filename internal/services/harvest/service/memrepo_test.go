package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/harvest/domain"
)

// fakeDB runs Tx callbacks inline; the mem repo never touches it
type fakeDB struct {
	repokit.Queryer
	txs int
}

func (f *fakeDB) Tx(_ context.Context, fn func(repokit.Queryer) error) error {
	f.txs++
	return fn(f)
}

// memRepo is an in-memory domain.Repo sharing one state across binds
type memRepo struct {
	mu    sync.Mutex
	clock clock.Clock

	sellers   []domain.Seller
	asins     map[int64][]string
	asinState map[string]domain.AsinStatus
	units     map[int64]*domain.WorkUnit
	tasks     []domain.ReportTask
	activity  []domain.ActivityEntry
	downloads []domain.DownloadRecord
	nextID    int64

	docErr error
}

func newMemRepo(c clock.Clock) *memRepo {
	return &memRepo{
		clock:     c,
		asins:     map[int64][]string{},
		asinState: map[string]domain.AsinStatus{},
		units:     map[int64]*domain.WorkUnit{},
	}
}

func (m *memRepo) binder() repokit.Binder[domain.Repo] {
	return repokit.BindFunc[domain.Repo](func(repokit.Queryer) domain.Repo { return m })
}

func (m *memRepo) id() int64 { m.nextID++; return m.nextID }

func asinKey(seller int64, asin string, t domain.ReportType) string {
	return fmt.Sprintf("%d/%s/%s", seller, asin, t)
}

func (m *memRepo) addSeller(s domain.Seller, asins ...string) domain.Seller {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.sellers = append(m.sellers, s)
	m.asins[s.ID] = asins
	return s
}

func (m *memRepo) NextSeller(_ context.Context, q domain.SellerQuery) (domain.Seller, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Seller
	for _, s := range m.sellers {
		if q.Users != nil && !slices.Contains(q.Users, s.UserID) {
			continue
		}
		if (q.UserID != "" && s.UserID != q.UserID) || (q.SellerID != "" && s.SellingPartnerID != q.SellerID) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return domain.Seller{}, false, nil
	}
	slices.SortStableFunc(out, func(a, b domain.Seller) int { return a.LastRunAt.Compare(b.LastRunAt) })
	return out[0], true, nil
}

func (m *memRepo) seller(id int64) *domain.Seller {
	for i := range m.sellers {
		if m.sellers[i].ID == id {
			return &m.sellers[i]
		}
	}
	return nil
}

func (m *memRepo) Seller(_ context.Context, id int64) (domain.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.seller(id); s != nil {
		return *s, nil
	}
	return domain.Seller{}, perr.NotFoundf("seller %d not found", id)
}

func (m *memRepo) TouchSellerRun(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seller(id).LastRunAt = at
	return nil
}

func (m *memRepo) SetLastPull(_ context.Context, id int64, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seller(id).LastPullAt = day
	return nil
}

func (m *memRepo) EligibleAsins(_ context.Context, sellerID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.asins[sellerID]), nil
}

func (m *memRepo) MarkAsins(_ context.Context, sellerID int64, asins []string, t domain.ReportType, st domain.AsinStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range asins {
		m.asinState[asinKey(sellerID, a, t)] = st
	}
	return nil
}

func (m *memRepo) asinStatus(sellerID int64, asin string, t domain.ReportType) domain.AsinStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asinState[asinKey(sellerID, asin, t)]
}

func (m *memRepo) Covered(_ context.Context, sellerID int64, asins string, t domain.ReportType, rng string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		st := u.Types[t]
		if u.SellerAccountID == sellerID && u.Asins == asins && st.Range == rng && st.Pull == domain.PullCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) FindOpenUnit(_ context.Context, sellerID int64, asins string, ranges map[domain.ReportType]string) (domain.WorkUnit, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range slices.Sorted(maps.Keys(m.units)) {
		u := m.units[id]
		open := u.Running == domain.Running || u.Running == domain.RunningNeedsRetry
		if open && u.SellerAccountID == sellerID && u.Asins == asins && maps.Equal(u.Ranges(), ranges) {
			return cloneUnit(*u), true, nil
		}
	}
	return domain.WorkUnit{}, false, nil
}

func cloneUnit(u domain.WorkUnit) domain.WorkUnit {
	u.Types = maps.Clone(u.Types)
	return u
}

func (m *memRepo) CreateUnit(_ context.Context, u domain.WorkUnit) (domain.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	u.CreatedAt, u.UpdatedAt = m.clock.Now(), m.clock.Now()
	c := cloneUnit(u)
	m.units[u.ID] = &c
	return cloneUnit(u), nil
}

func (m *memRepo) Unit(_ context.Context, id int64) (domain.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return domain.WorkUnit{}, perr.NotFoundf("work unit %d not found", id)
	}
	return cloneUnit(*u), nil
}

func (m *memRepo) UpdateType(_ context.Context, unitID int64, t domain.ReportType, st domain.TypeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[unitID]
	if !ok {
		return perr.NotFoundf("work unit %d not found", unitID)
	}
	u.Types[t] = st
	u.UpdatedAt = m.clock.Now()
	return nil
}

func (m *memRepo) SetRunning(_ context.Context, unitID int64, st domain.RunningStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[unitID].Running = st
	return nil
}

func (m *memRepo) StuckTypes(_ context.Context, before time.Time, limit int) ([]domain.StuckRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StuckRef
	for _, id := range slices.Sorted(maps.Keys(m.units)) {
		u := m.units[id]
		if !u.UpdatedAt.Before(before) {
			continue
		}
		for _, t := range []domain.ReportType{domain.Week, domain.Month, domain.Quarter} {
			st := u.Types[t]
			if st.Range != "" && st.Phase.Active() && !st.Pull.Terminal() && len(out) < limit {
				out = append(out, domain.StuckRef{WorkUnitID: u.ID, Type: t, Phase: st.Phase, UpdatedAt: u.UpdatedAt})
			}
		}
	}
	return out, nil
}

func (m *memRepo) ClaimTask(_ context.Context, task domain.ReportTask) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.tasks {
		if x.WorkUnitID == task.WorkUnitID && x.Type == task.Type && x.Range == task.Range && x.State.Active() {
			return false, nil
		}
	}
	task.CreatedAt, task.UpdatedAt = m.clock.Now(), m.clock.Now()
	m.tasks = append(m.tasks, task)
	return true, nil
}

func (m *memRepo) findTask(unitID int64, t domain.ReportType, rng string, active bool) (domain.ReportTask, bool) {
	for i := len(m.tasks) - 1; i >= 0; i-- {
		x := m.tasks[i]
		if x.WorkUnitID == unitID && x.Type == t && x.Range == rng && (!active || x.State.Active()) {
			return x, true
		}
	}
	return domain.ReportTask{}, false
}

func (m *memRepo) ActiveTask(_ context.Context, unitID int64, t domain.ReportType, rng string) (domain.ReportTask, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.findTask(unitID, t, rng, true)
	return x, ok, nil
}

func (m *memRepo) LatestTask(_ context.Context, unitID int64, t domain.ReportType, rng string) (domain.ReportTask, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.findTask(unitID, t, rng, false)
	return x, ok, nil
}

func (m *memRepo) UpdateTask(_ context.Context, id string, st domain.TaskState, reportID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID != id {
			continue
		}
		m.tasks[i].State = st
		if reportID != "" {
			m.tasks[i].ReportID = reportID
		}
		if documentID != "" {
			m.tasks[i].DocumentID = documentID
		}
		m.tasks[i].UpdatedAt = m.clock.Now()
		return nil
	}
	return perr.NotFoundf("task %s not found", id)
}

func (m *memRepo) LogActivity(_ context.Context, e domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	e.CreatedAt = m.clock.Now()
	m.activity = append(m.activity, e)
	return nil
}

func (m *memRepo) latest(unitID int64, t domain.ReportType, rng string, since time.Time, pick func(domain.ActivityEntry) string) (string, bool) {
	for i := len(m.activity) - 1; i >= 0; i-- {
		e := m.activity[i]
		if e.WorkUnitID == unitID && e.Type == t && e.Range == rng && !e.CreatedAt.Before(since) {
			if v := pick(e); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func (m *memRepo) LatestReportID(_ context.Context, unitID int64, t domain.ReportType, rng string, since time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.latest(unitID, t, rng, since, func(e domain.ActivityEntry) string { return e.ReportID })
	return v, ok, nil
}

func (m *memRepo) LatestDocumentID(_ context.Context, unitID int64, t domain.ReportType, rng string, since time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docErr != nil {
		return "", false, m.docErr
	}
	v, ok := m.latest(unitID, t, rng, since, func(e domain.ActivityEntry) string { return e.DocumentID })
	return v, ok, nil
}

func (m *memRepo) actions(unitID int64, action string) []domain.ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActivityEntry
	for _, e := range m.activity {
		if e.WorkUnitID == unitID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (m *memRepo) dl(id int64) *domain.DownloadRecord {
	for i := range m.downloads {
		if m.downloads[i].ID == id {
			return &m.downloads[i]
		}
	}
	return nil
}

func (m *memRepo) EnsureDownload(_ context.Context, d domain.DownloadRecord) (domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.downloads {
		if x.WorkUnitID == d.WorkUnitID && x.Type == d.Type && x.DocumentID == d.DocumentID {
			return x, nil
		}
	}
	d.ID = m.id()
	d.UpdatedAt = m.clock.Now()
	m.downloads = append(m.downloads, d)
	return d, nil
}

func (m *memRepo) BeginDownloadAttempt(_ context.Context, id int64) (domain.DownloadRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dl(id)
	if d == nil {
		return domain.DownloadRecord{}, false, perr.NotFoundf("download %d not found", id)
	}
	if !d.Status.CanTransition(domain.DownloadDownloading) || d.Attempts >= d.MaxAttempts {
		return *d, false, nil
	}
	d.Status = domain.DownloadDownloading
	d.Attempts++
	return *d, true, nil
}

func (m *memRepo) CompleteDownload(_ context.Context, id int64, path string, size int64, rows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dl(id)
	if d == nil || !d.Status.CanTransition(domain.DownloadCompleted) {
		return perr.Conflictf("download %d cannot complete", id)
	}
	d.Status, d.Path, d.SizeBytes, d.RowCount = domain.DownloadCompleted, path, size, rows
	return nil
}

func (m *memRepo) FailDownload(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dl(id)
	if d == nil {
		return perr.NotFoundf("download %d not found", id)
	}
	d.Status, d.ImportError = domain.DownloadFailed, msg
	return nil
}

func (m *memRepo) Download(_ context.Context, id int64) (domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.dl(id); d != nil {
		return *d, nil
	}
	return domain.DownloadRecord{}, perr.NotFoundf("download %d not found", id)
}

func (m *memRepo) LatestDownload(_ context.Context, unitID int64, t domain.ReportType) (domain.DownloadRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.downloads) - 1; i >= 0; i-- {
		if d := m.downloads[i]; d.WorkUnitID == unitID && d.Type == t {
			return d, true, nil
		}
	}
	return domain.DownloadRecord{}, false, nil
}

func (m *memRepo) PendingImports(_ context.Context, limit int) ([]domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DownloadRecord
	for _, d := range m.downloads {
		if d.Status == domain.DownloadCompleted && d.ImportedAt.IsZero() && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) markImported(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dl(id).ImportedAt = m.clock.Now()
}
