package sqlx

import (
	"context"
	"strings"
)

// Schema is the DDL for the gamification tables. It sticks to types both
// PostgreSQL and MySQL accept so one script serves either driver.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
    id          VARCHAR(64)  PRIMARY KEY,
    name        VARCHAR(255) NOT NULL,
    api_key     VARCHAR(128) NOT NULL,
    metadata    TEXT,
    created_at  TIMESTAMP    NOT NULL,
    deleted     BOOLEAN      NOT NULL DEFAULT FALSE,
    UNIQUE (api_key)
);

CREATE TABLE IF NOT EXISTS users (
    id            VARCHAR(64)  PRIMARY KEY,
    company_id    VARCHAR(64)  NOT NULL,
    name          VARCHAR(255) NOT NULL,
    xp            BIGINT       NOT NULL DEFAULT 0,
    used_xp       BIGINT       NOT NULL DEFAULT 0,
    level         BIGINT       NOT NULL DEFAULT 1,
    last_activity TIMESTAMP    NULL,
    metadata      TEXT,
    created_at    TIMESTAMP    NOT NULL,
    deleted       BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_users_company ON users (company_id, deleted);

CREATE TABLE IF NOT EXISTS teams (
    id          VARCHAR(64)  PRIMARY KEY,
    company_id  VARCHAR(64)  NOT NULL,
    name        VARCHAR(255) NOT NULL,
    metadata    TEXT,
    created_at  TIMESTAMP    NOT NULL,
    deleted     BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_teams_company ON teams (company_id, deleted);

CREATE TABLE IF NOT EXISTS team_members (
    team_id  VARCHAR(64) NOT NULL,
    user_id  VARCHAR(64) NOT NULL,
    PRIMARY KEY (team_id, user_id)
);

CREATE TABLE IF NOT EXISTS metrics (
    id              VARCHAR(64)  PRIMARY KEY,
    company_id      VARCHAR(64)  NOT NULL,
    name            VARCHAR(255) NOT NULL,
    description     TEXT,
    default_gain_xp BIGINT       NOT NULL DEFAULT 0,
    metadata        TEXT,
    created_at      TIMESTAMP    NOT NULL,
    deleted         BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_metrics_company ON metrics (company_id, deleted);

CREATE TABLE IF NOT EXISTS metric_history (
    id          VARCHAR(64) PRIMARY KEY,
    user_id     VARCHAR(64) NOT NULL,
    metric_id   VARCHAR(64) NOT NULL,
    value       BIGINT      NOT NULL,
    created_at  TIMESTAMP   NOT NULL,
    deleted     BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_history_user_metric ON metric_history (user_id, metric_id, deleted);

CREATE TABLE IF NOT EXISTS objectives (
    id           VARCHAR(64)  PRIMARY KEY,
    company_id   VARCHAR(64)  NOT NULL,
    metric_id    VARCHAR(64)  NOT NULL,
    name         VARCHAR(255) NOT NULL,
    description  TEXT,
    type         VARCHAR(16)  NOT NULL,
    target_value BIGINT       NOT NULL,
    reward_xp    BIGINT       NOT NULL DEFAULT 0,
    start_date   TIMESTAMP    NULL,
    end_date     TIMESTAMP    NULL,
    team_id      VARCHAR(64)  NULL,
    metadata     TEXT,
    created_at   TIMESTAMP    NOT NULL,
    deleted      BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_objectives_metric ON objectives (company_id, metric_id, deleted);

CREATE TABLE IF NOT EXISTS objective_trackers (
    id           VARCHAR(64) PRIMARY KEY,
    objective_id VARCHAR(64) NOT NULL,
    user_id      VARCHAR(64) NOT NULL,
    progress     BIGINT      NOT NULL DEFAULT 0,
    completed    BOOLEAN     NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP   NULL,
    deleted      BOOLEAN     NOT NULL DEFAULT FALSE,
    UNIQUE (objective_id, user_id)
);

CREATE TABLE IF NOT EXISTS badges (
    id          VARCHAR(64)  PRIMARY KEY,
    company_id  VARCHAR(64)  NOT NULL,
    name        VARCHAR(255) NOT NULL,
    description TEXT,
    reusable    BOOLEAN      NOT NULL DEFAULT FALSE,
    metadata    TEXT,
    created_at  TIMESTAMP    NOT NULL,
    deleted     BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_badges_company ON badges (company_id, deleted);

CREATE TABLE IF NOT EXISTS badge_conditions (
    id        VARCHAR(64) PRIMARY KEY,
    badge_id  VARCHAR(64) NOT NULL,
    metric_id VARCHAR(64) NOT NULL,
    operator  VARCHAR(8)  NOT NULL,
    value     BIGINT      NULL,
    type      VARCHAR(16) NOT NULL,
    priority  INT         NOT NULL DEFAULT 0,
    deleted   BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_conditions_badge ON badge_conditions (badge_id, deleted);
CREATE INDEX IF NOT EXISTS idx_conditions_metric ON badge_conditions (metric_id, deleted);

CREATE TABLE IF NOT EXISTS earned_badges (
    id         VARCHAR(64) PRIMARY KEY,
    user_id    VARCHAR(64) NOT NULL,
    badge_id   VARCHAR(64) NOT NULL,
    created_at TIMESTAMP   NOT NULL,
    deleted    BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_earned_user_badge ON earned_badges (user_id, badge_id, deleted);

CREATE TABLE IF NOT EXISTS rewards (
    id           VARCHAR(64)  PRIMARY KEY,
    company_id   VARCHAR(64)  NOT NULL,
    name         VARCHAR(255) NOT NULL,
    description  TEXT,
    xp_threshold BIGINT       NOT NULL DEFAULT 0,
    value        BIGINT       NOT NULL DEFAULT 0,
    quantity     BIGINT       NOT NULL DEFAULT 0,
    expires_at   TIMESTAMP    NULL,
    metadata     TEXT,
    created_at   TIMESTAMP    NOT NULL,
    deleted      BOOLEAN      NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_rewards_company ON rewards (company_id, deleted);

CREATE TABLE IF NOT EXISTS user_rewards (
    id         VARCHAR(64) PRIMARY KEY,
    user_id    VARCHAR(64) NOT NULL,
    reward_id  VARCHAR(64) NOT NULL,
    status     VARCHAR(16) NOT NULL,
    claimed_at TIMESTAMP   NULL,
    deleted    BOOLEAN     NOT NULL DEFAULT FALSE
);
`

// EnsureSchema creates the tables when they do not exist yet. Statements run
// one at a time because the MySQL driver rejects multi-statement Exec by
// default.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
