// Package sqlx persists the gamification domain in PostgreSQL or MySQL via
// jmoiron/sqlx. Transactions use real database transactions with row locks;
// serialization failures and deadlocks surface as core.ErrTxConflict so the
// engine can retry them.
package sqlx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gamifyd/core"
	"gamifyd/engine"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config describes a database connection.
type Config struct {
	Driver          Driver        `json:"driver" env:"SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns conservative pool settings for the driver.
func DefaultConfig(drv Driver) Config {
	return Config{
		Driver:          drv,
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Store on a SQL database.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

var _ engine.Store = (*Store)(nil)

// New opens a connection pool and pings it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return NewWithDB(db, cfg.Driver), nil
}

// NewWithDB wraps an existing connection, e.g. a sqlmock one in tests.
func NewWithDB(db *sqlx.DB, drv Driver) *Store {
	return &Store{db: db, driver: drv}
}

func (s *Store) Close() error { return s.db.Close() }

// mapErr converts driver-specific serialization and deadlock failures into
// core.ErrTxConflict.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%v: %w", err, core.ErrTxConflict)
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		if myErr.Number == 1213 || myErr.Number == 1205 {
			return fmt.Errorf("%v: %w", err, core.ErrTxConflict)
		}
	}
	return err
}

// InTx opens a database transaction for fn. Row locks taken by the
// *ForUpdate reads serialize concurrent workflows touching the same rows.
func (s *Store) InTx(ctx context.Context, companyID string, fn func(tx engine.Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	t := &sqlTx{q: txx, store: s, companyID: companyID}
	if err := fn(t); err != nil {
		_ = txx.Rollback()
		return mapErr(err)
	}
	if err := txx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// queryer abstracts *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func (s *Store) rebind(q string) string { return sqlx.Rebind(sqlx.BindType(string(s.driver)), q) }

// metaJSON stores a metadata map as a JSON text column.
type metaJSON map[string]string

func (m metaJSON) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *metaJSON) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into metadata", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// sort columns exposed per entity; engine.ValidatePage has already screened
// the field name, this maps it to the physical column.
var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"name":        "name",
	"xp":          "xp",
	"level":       "level",
	"startDate":   "start_date",
	"endDate":     "end_date",
	"targetValue": "target_value",
	"xpThreshold": "xp_threshold",
	"quantity":    "quantity",
	"value":       "value",
}

func orderClause(p engine.Page) string {
	col, ok := sortColumns[p.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(p.Direction, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s LIMIT %d OFFSET %d", col, dir, p.Limit, p.Offset())
}

// ---- row types ----

type companyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	APIKey    string    `db:"api_key"`
	Metadata  metaJSON  `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	Deleted   bool      `db:"deleted"`
}

func (r companyRow) domain() core.Company {
	return core.Company{ID: r.ID, Name: r.Name, APIKey: r.APIKey, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted}
}

type userRow struct {
	ID           string       `db:"id"`
	CompanyID    string       `db:"company_id"`
	Name         string       `db:"name"`
	XP           int64        `db:"xp"`
	UsedXP       int64        `db:"used_xp"`
	Level        int64        `db:"level"`
	LastActivity sql.NullTime `db:"last_activity"`
	Metadata     metaJSON     `db:"metadata"`
	CreatedAt    time.Time    `db:"created_at"`
	Deleted      bool         `db:"deleted"`
}

func (r userRow) domain() core.User {
	return core.User{
		ID: r.ID, CompanyID: r.CompanyID, Name: r.Name,
		XP: r.XP, UsedXP: r.UsedXP, Level: r.Level,
		LastActivity: timePtr(r.LastActivity),
		Metadata:     r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted,
	}
}

type teamRow struct {
	ID        string    `db:"id"`
	CompanyID string    `db:"company_id"`
	Name      string    `db:"name"`
	Metadata  metaJSON  `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	Deleted   bool      `db:"deleted"`
}

type metricRow struct {
	ID            string    `db:"id"`
	CompanyID     string    `db:"company_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	DefaultGainXP int64     `db:"default_gain_xp"`
	Metadata      metaJSON  `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
	Deleted       bool      `db:"deleted"`
}

func (r metricRow) domain() core.Metric {
	return core.Metric{
		ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, Description: r.Description,
		DefaultGainXP: r.DefaultGainXP, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted,
	}
}

type objectiveRow struct {
	ID          string         `db:"id"`
	CompanyID   string         `db:"company_id"`
	MetricID    string         `db:"metric_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Type        string         `db:"type"`
	TargetValue int64          `db:"target_value"`
	RewardXP    int64          `db:"reward_xp"`
	StartDate   sql.NullTime   `db:"start_date"`
	EndDate     sql.NullTime   `db:"end_date"`
	TeamID      sql.NullString `db:"team_id"`
	Metadata    metaJSON       `db:"metadata"`
	CreatedAt   time.Time      `db:"created_at"`
	Deleted     bool           `db:"deleted"`
}

func (r objectiveRow) domain() core.Objective {
	o := core.Objective{
		ID: r.ID, CompanyID: r.CompanyID, MetricID: r.MetricID,
		Name: r.Name, Description: r.Description,
		Type: core.ObjectiveType(r.Type), TargetValue: r.TargetValue, RewardXP: r.RewardXP,
		TeamID: r.TeamID.String, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted,
	}
	if r.StartDate.Valid {
		o.StartDate = r.StartDate.Time
	}
	if r.EndDate.Valid {
		o.EndDate = r.EndDate.Time
	}
	return o
}

type trackerRow struct {
	ID          string       `db:"id"`
	ObjectiveID string       `db:"objective_id"`
	UserID      string       `db:"user_id"`
	Progress    int64        `db:"progress"`
	Completed   bool         `db:"completed"`
	CompletedAt sql.NullTime `db:"completed_at"`
	Deleted     bool         `db:"deleted"`
}

func (r trackerRow) domain() core.ObjectiveTracker {
	return core.ObjectiveTracker{
		ID: r.ID, ObjectiveID: r.ObjectiveID, UserID: r.UserID,
		Progress: r.Progress, Completed: r.Completed,
		CompletedAt: timePtr(r.CompletedAt), Deleted: r.Deleted,
	}
}

type badgeRow struct {
	ID          string    `db:"id"`
	CompanyID   string    `db:"company_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Reusable    bool      `db:"reusable"`
	Metadata    metaJSON  `db:"metadata"`
	CreatedAt   time.Time `db:"created_at"`
	Deleted     bool      `db:"deleted"`
}

func (r badgeRow) domain() core.Badge {
	return core.Badge{
		ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, Description: r.Description,
		Reusable: r.Reusable, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted,
	}
}

type conditionRow struct {
	ID       string        `db:"id"`
	BadgeID  string        `db:"badge_id"`
	MetricID string        `db:"metric_id"`
	Operator string        `db:"operator"`
	Value    sql.NullInt64 `db:"value"`
	Type     string        `db:"type"`
	Priority int           `db:"priority"`
	Deleted  bool          `db:"deleted"`
}

func (r conditionRow) domain() core.Condition {
	c := core.Condition{
		ID: r.ID, BadgeID: r.BadgeID, MetricID: r.MetricID,
		Operator: core.Operator(r.Operator), Type: core.ConditionType(r.Type),
		Priority: r.Priority, Deleted: r.Deleted,
	}
	if r.Value.Valid {
		v := r.Value.Int64
		c.Value = &v
	}
	return c
}

type rewardRow struct {
	ID          string       `db:"id"`
	CompanyID   string       `db:"company_id"`
	Name        string       `db:"name"`
	Description string       `db:"description"`
	XPThreshold int64        `db:"xp_threshold"`
	Value       int64        `db:"value"`
	Quantity    int64        `db:"quantity"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
	Metadata    metaJSON     `db:"metadata"`
	CreatedAt   time.Time    `db:"created_at"`
	Deleted     bool         `db:"deleted"`
}

func (r rewardRow) domain() core.Reward {
	return core.Reward{
		ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, Description: r.Description,
		XPThreshold: r.XPThreshold, Value: r.Value, Quantity: r.Quantity,
		ExpiresAt: timePtr(r.ExpiresAt), Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted,
	}
}

type historyRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	MetricID  string    `db:"metric_id"`
	Value     int64     `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	Deleted   bool      `db:"deleted"`
}

func (r historyRow) domain() core.MetricHistory {
	return core.MetricHistory{ID: r.ID, UserID: r.UserID, MetricID: r.MetricID, Value: r.Value, CreatedAt: r.CreatedAt, Deleted: r.Deleted}
}

// upsert runs an UPDATE and falls back to INSERT when no row matched.
// Writes for a given row are serialized by the callers (admin saves are rare,
// workflow writes hold row locks), so the two-step form is safe here.
func (s *Store) upsert(ctx context.Context, q queryer, update, insert string, updateArgs, insertArgs []any) error {
	res, err := q.ExecContext(ctx, s.rebind(update), updateArgs...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = q.ExecContext(ctx, s.rebind(insert), insertArgs...)
	return mapErr(err)
}

// ---- companies ----

func (s *Store) CompanyByAPIKey(ctx context.Context, apiKey string) (core.Company, error) {
	var r companyRow
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT id, name, api_key, metadata, created_at, deleted
		 FROM companies WHERE api_key = ? AND deleted = FALSE`), apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Company{}, core.NotFoundf("no company for api key")
	}
	if err != nil {
		return core.Company{}, err
	}
	return r.domain(), nil
}

func (s *Store) SaveCompany(ctx context.Context, c core.Company) error {
	return s.upsert(ctx, s.db,
		`UPDATE companies SET name = ?, api_key = ?, metadata = ?, deleted = ? WHERE id = ?`,
		`INSERT INTO companies (id, name, api_key, metadata, created_at, deleted) VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{c.Name, c.APIKey, metaJSON(c.Metadata), c.Deleted, c.ID},
		[]any{c.ID, c.Name, c.APIKey, metaJSON(c.Metadata), c.CreatedAt, c.Deleted},
	)
}

// ---- users ----

const userCols = `id, company_id, name, xp, used_xp, level, last_activity, metadata, created_at, deleted`

func (s *Store) getUser(ctx context.Context, q queryer, companyID, id string, forUpdate bool) (core.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE id = ? AND company_id = ? AND deleted = FALSE`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var r userRow
	err := q.GetContext(ctx, &r, s.rebind(query), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFoundf("user %s", id)
	}
	if err != nil {
		return core.User{}, mapErr(err)
	}
	return r.domain(), nil
}

func (s *Store) GetUser(ctx context.Context, companyID, id string) (core.User, error) {
	return s.getUser(ctx, s.db, companyID, id, false)
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	return s.upsert(ctx, s.db,
		`UPDATE users SET name = ?, xp = ?, used_xp = ?, level = ?, last_activity = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{u.Name, u.XP, u.UsedXP, u.Level, nullTimePtr(u.LastActivity), metaJSON(u.Metadata), u.Deleted, u.ID, u.CompanyID},
		[]any{u.ID, u.CompanyID, u.Name, u.XP, u.UsedXP, u.Level, nullTimePtr(u.LastActivity), metaJSON(u.Metadata), u.CreatedAt, u.Deleted},
	)
}

func (s *Store) ListUsers(ctx context.Context, companyID string, p engine.Page) ([]core.User, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM users WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+userCols+` FROM users WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]core.User, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, total, nil
}

// ---- teams ----

func (s *Store) GetTeam(ctx context.Context, companyID, id string) (core.Team, error) {
	var r teamRow
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT id, company_id, name, metadata, created_at, deleted
		 FROM teams WHERE id = ? AND company_id = ? AND deleted = FALSE`), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Team{}, core.NotFoundf("team %s", id)
	}
	if err != nil {
		return core.Team{}, err
	}
	members, err := s.teamMembers(ctx, id)
	if err != nil {
		return core.Team{}, err
	}
	return core.Team{ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, MemberIDs: members, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted}, nil
}

func (s *Store) teamMembers(ctx context.Context, teamID string) ([]string, error) {
	var members []string
	err := s.db.SelectContext(ctx, &members, s.rebind(
		`SELECT user_id FROM team_members WHERE team_id = ? ORDER BY user_id`), teamID)
	return members, err
}

func (s *Store) SaveTeam(ctx context.Context, t core.Team) error {
	err := s.upsert(ctx, s.db,
		`UPDATE teams SET name = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO teams (id, company_id, name, metadata, created_at, deleted) VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{t.Name, metaJSON(t.Metadata), t.Deleted, t.ID, t.CompanyID},
		[]any{t.ID, t.CompanyID, t.Name, metaJSON(t.Metadata), t.CreatedAt, t.Deleted},
	)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM team_members WHERE team_id = ?`), t.ID); err != nil {
		return err
	}
	for _, uid := range t.MemberIDs {
		if _, err := s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO team_members (team_id, user_id) VALUES (?, ?)`), t.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListTeams(ctx context.Context, companyID string, p engine.Page) ([]core.Team, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM teams WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []teamRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT id, company_id, name, metadata, created_at, deleted
		 FROM teams WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]core.Team, len(rows))
	for i, r := range rows {
		members, err := s.teamMembers(ctx, r.ID)
		if err != nil {
			return nil, 0, err
		}
		out[i] = core.Team{ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, MemberIDs: members, Metadata: r.Metadata, CreatedAt: r.CreatedAt, Deleted: r.Deleted}
	}
	return out, total, nil
}

// ---- metrics ----

const metricCols = `id, company_id, name, description, default_gain_xp, metadata, created_at, deleted`

func (s *Store) GetMetric(ctx context.Context, companyID, id string) (core.Metric, error) {
	var r metricRow
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT `+metricCols+` FROM metrics WHERE id = ? AND company_id = ? AND deleted = FALSE`), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Metric{}, core.NotFoundf("metric %s", id)
	}
	if err != nil {
		return core.Metric{}, err
	}
	return r.domain(), nil
}

func (s *Store) SaveMetric(ctx context.Context, m core.Metric) error {
	return s.upsert(ctx, s.db,
		`UPDATE metrics SET name = ?, description = ?, default_gain_xp = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO metrics (`+metricCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{m.Name, m.Description, m.DefaultGainXP, metaJSON(m.Metadata), m.Deleted, m.ID, m.CompanyID},
		[]any{m.ID, m.CompanyID, m.Name, m.Description, m.DefaultGainXP, metaJSON(m.Metadata), m.CreatedAt, m.Deleted},
	)
}

func (s *Store) ListMetrics(ctx context.Context, companyID string, p engine.Page) ([]core.Metric, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM metrics WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []metricRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+metricCols+` FROM metrics WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]core.Metric, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, total, nil
}

func (s *Store) MetricNameTaken(ctx context.Context, companyID, name, excludeID string) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, s.rebind(
		`SELECT EXISTS (
		   SELECT 1 FROM metrics
		   WHERE company_id = ? AND LOWER(name) = LOWER(?) AND id <> ? AND deleted = FALSE
		 )`), companyID, name, excludeID)
	return taken, err
}

// ---- objectives ----

const objectiveCols = `id, company_id, metric_id, name, description, type, target_value, reward_xp, start_date, end_date, team_id, metadata, created_at, deleted`

func (s *Store) GetObjective(ctx context.Context, companyID, id string) (core.Objective, error) {
	var r objectiveRow
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT `+objectiveCols+` FROM objectives WHERE id = ? AND company_id = ? AND deleted = FALSE`), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Objective{}, core.NotFoundf("objective %s", id)
	}
	if err != nil {
		return core.Objective{}, err
	}
	return r.domain(), nil
}

func (s *Store) SaveObjective(ctx context.Context, o core.Objective) error {
	teamID := sql.NullString{String: o.TeamID, Valid: o.TeamID != ""}
	return s.upsert(ctx, s.db,
		`UPDATE objectives SET metric_id = ?, name = ?, description = ?, type = ?, target_value = ?, reward_xp = ?, start_date = ?, end_date = ?, team_id = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO objectives (`+objectiveCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{o.MetricID, o.Name, o.Description, string(o.Type), o.TargetValue, o.RewardXP, nullTime(o.StartDate), nullTime(o.EndDate), teamID, metaJSON(o.Metadata), o.Deleted, o.ID, o.CompanyID},
		[]any{o.ID, o.CompanyID, o.MetricID, o.Name, o.Description, string(o.Type), o.TargetValue, o.RewardXP, nullTime(o.StartDate), nullTime(o.EndDate), teamID, metaJSON(o.Metadata), o.CreatedAt, o.Deleted},
	)
}

func (s *Store) ListObjectives(ctx context.Context, companyID string, p engine.Page) ([]engine.ObjectiveProgress, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM objectives WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []objectiveRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+objectiveCols+` FROM objectives WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]engine.ObjectiveProgress, len(rows))
	for i, r := range rows {
		trackers, err := s.liveTrackers(ctx, s.db, r.ID)
		if err != nil {
			return nil, 0, err
		}
		out[i] = engine.ObjectiveProgress{Objective: r.domain(), Trackers: trackers}
	}
	return out, total, nil
}

const trackerCols = `id, objective_id, user_id, progress, completed, completed_at, deleted`

func (s *Store) liveTrackers(ctx context.Context, q queryer, objectiveID string) ([]core.ObjectiveTracker, error) {
	var rows []trackerRow
	err := q.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+trackerCols+` FROM objective_trackers
		 WHERE objective_id = ? AND deleted = FALSE ORDER BY id`), objectiveID)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]core.ObjectiveTracker, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) TrackersForObjective(ctx context.Context, objectiveID string) ([]core.ObjectiveTracker, error) {
	var rows []trackerRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+trackerCols+` FROM objective_trackers WHERE objective_id = ? ORDER BY id`), objectiveID)
	if err != nil {
		return nil, err
	}
	out := make([]core.ObjectiveTracker, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) TrackersForUser(ctx context.Context, userID string) ([]core.ObjectiveTracker, error) {
	var rows []trackerRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+trackerCols+` FROM objective_trackers WHERE user_id = ? AND deleted = FALSE ORDER BY id`), userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.ObjectiveTracker, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) saveTracker(ctx context.Context, q queryer, t core.ObjectiveTracker) error {
	return s.upsert(ctx, q,
		`UPDATE objective_trackers SET progress = ?, completed = ?, completed_at = ?, deleted = ? WHERE id = ?`,
		`INSERT INTO objective_trackers (`+trackerCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]any{t.Progress, t.Completed, nullTimePtr(t.CompletedAt), t.Deleted, t.ID},
		[]any{t.ID, t.ObjectiveID, t.UserID, t.Progress, t.Completed, nullTimePtr(t.CompletedAt), t.Deleted},
	)
}

func (s *Store) SaveTracker(ctx context.Context, t core.ObjectiveTracker) error {
	return s.saveTracker(ctx, s.db, t)
}

// ---- badges ----

const badgeCols = `id, company_id, name, description, reusable, metadata, created_at, deleted`
const conditionCols = `id, badge_id, metric_id, operator, value, type, priority, deleted`

func (s *Store) GetBadge(ctx context.Context, companyID, id string) (engine.BadgeDetail, error) {
	var r badgeRow
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT `+badgeCols+` FROM badges WHERE id = ? AND company_id = ? AND deleted = FALSE`), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.BadgeDetail{}, core.NotFoundf("badge %s", id)
	}
	if err != nil {
		return engine.BadgeDetail{}, err
	}
	conds, err := s.badgeConditions(ctx, s.db, id, "")
	if err != nil {
		return engine.BadgeDetail{}, err
	}
	return engine.BadgeDetail{Badge: r.domain(), Conditions: conds}, nil
}

func (s *Store) badgeConditions(ctx context.Context, q queryer, badgeID, metricID string) ([]core.Condition, error) {
	query := `SELECT ` + conditionCols + ` FROM badge_conditions WHERE badge_id = ? AND deleted = FALSE`
	args := []any{badgeID}
	if metricID != "" {
		query += ` AND metric_id = ?`
		args = append(args, metricID)
	}
	query += ` ORDER BY priority ASC, id ASC`
	var rows []conditionRow
	if err := q.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, mapErr(err)
	}
	out := make([]core.Condition, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) SaveBadge(ctx context.Context, b core.Badge) error {
	return s.upsert(ctx, s.db,
		`UPDATE badges SET name = ?, description = ?, reusable = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO badges (`+badgeCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{b.Name, b.Description, b.Reusable, metaJSON(b.Metadata), b.Deleted, b.ID, b.CompanyID},
		[]any{b.ID, b.CompanyID, b.Name, b.Description, b.Reusable, metaJSON(b.Metadata), b.CreatedAt, b.Deleted},
	)
}

func (s *Store) SaveCondition(ctx context.Context, c core.Condition) error {
	value := sql.NullInt64{}
	if c.Value != nil {
		value = sql.NullInt64{Int64: *c.Value, Valid: true}
	}
	return s.upsert(ctx, s.db,
		`UPDATE badge_conditions SET metric_id = ?, operator = ?, value = ?, type = ?, priority = ?, deleted = ? WHERE id = ?`,
		`INSERT INTO badge_conditions (`+conditionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{c.MetricID, string(c.Operator), value, string(c.Type), c.Priority, c.Deleted, c.ID},
		[]any{c.ID, c.BadgeID, c.MetricID, string(c.Operator), value, string(c.Type), c.Priority, c.Deleted},
	)
}

func (s *Store) ListBadges(ctx context.Context, companyID string, p engine.Page) ([]engine.BadgeDetail, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM badges WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []badgeRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+badgeCols+` FROM badges WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]engine.BadgeDetail, len(rows))
	for i, r := range rows {
		conds, err := s.badgeConditions(ctx, s.db, r.ID, "")
		if err != nil {
			return nil, 0, err
		}
		out[i] = engine.BadgeDetail{Badge: r.domain(), Conditions: conds}
	}
	return out, total, nil
}

// ---- rewards ----

const rewardCols = `id, company_id, name, description, xp_threshold, value, quantity, expires_at, metadata, created_at, deleted`

func (s *Store) getReward(ctx context.Context, q queryer, companyID, id string, forUpdate bool) (core.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE id = ? AND company_id = ? AND deleted = FALSE`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var r rewardRow
	err := q.GetContext(ctx, &r, s.rebind(query), id, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Reward{}, core.NotFoundf("reward %s", id)
	}
	if err != nil {
		return core.Reward{}, mapErr(err)
	}
	return r.domain(), nil
}

func (s *Store) GetReward(ctx context.Context, companyID, id string) (core.Reward, error) {
	return s.getReward(ctx, s.db, companyID, id, false)
}

func (s *Store) SaveReward(ctx context.Context, r core.Reward) error {
	return s.upsert(ctx, s.db,
		`UPDATE rewards SET name = ?, description = ?, xp_threshold = ?, value = ?, quantity = ?, expires_at = ?, metadata = ?, deleted = ? WHERE id = ? AND company_id = ?`,
		`INSERT INTO rewards (`+rewardCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{r.Name, r.Description, r.XPThreshold, r.Value, r.Quantity, nullTimePtr(r.ExpiresAt), metaJSON(r.Metadata), r.Deleted, r.ID, r.CompanyID},
		[]any{r.ID, r.CompanyID, r.Name, r.Description, r.XPThreshold, r.Value, r.Quantity, nullTimePtr(r.ExpiresAt), metaJSON(r.Metadata), r.CreatedAt, r.Deleted},
	)
}

func (s *Store) ListRewards(ctx context.Context, companyID string, p engine.Page) ([]core.Reward, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(
		`SELECT COUNT(*) FROM rewards WHERE company_id = ? AND deleted = FALSE`), companyID); err != nil {
		return nil, 0, err
	}
	var rows []rewardRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+rewardCols+` FROM rewards WHERE company_id = ? AND deleted = FALSE`+orderClause(p)), companyID); err != nil {
		return nil, 0, err
	}
	out := make([]core.Reward, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, total, nil
}

// ---- history ----

const historyCols = `id, user_id, metric_id, value, created_at, deleted`

func (s *Store) UserMetricHistory(ctx context.Context, companyID, userID, metricID string, p engine.Page) ([]core.MetricHistory, int, error) {
	if _, err := s.GetUser(ctx, companyID, userID); err != nil {
		return nil, 0, err
	}
	where := ` FROM metric_history WHERE user_id = ? AND deleted = FALSE`
	args := []any{userID}
	if metricID != "" {
		where += ` AND metric_id = ?`
		args = append(args, metricID)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.rebind(`SELECT COUNT(*)`+where), args...); err != nil {
		return nil, 0, err
	}
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT `+historyCols+where+orderClause(p)), args...); err != nil {
		return nil, 0, err
	}
	out := make([]core.MetricHistory, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, total, nil
}
