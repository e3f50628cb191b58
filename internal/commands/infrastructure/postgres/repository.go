package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	commands "purifier-cloud/internal/commands/domain"
)

// CommandRepository is the Postgres command ledger. State transitions are
// conditional updates so that a terminal status always wins a race against
// a concurrent markSent: the losing writer sees zero rows affected.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a pending command.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO commands (
	command_id, device_id, kind, fan_speed, origin, origin_ref,
	status, attempt, max_attempts, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)`, cmd.CommandID, cmd.DeviceID, cmd.Kind, cmd.FanSpeed, cmd.Origin, cmd.OriginRef,
		cmd.Status, cmd.Attempt, cmd.MaxAttempts, cmd.CreatedAt)
	return err
}

// GetByID fetches a command by id.
func (r *CommandRepository) GetByID(ctx context.Context, id string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT command_id, device_id, kind, fan_speed, origin, origin_ref,
	status, attempt, max_attempts, created_at, sent_at, acked_at, error
FROM commands
WHERE command_id = $1
LIMIT 1`, id)
	return scanCommand(row)
}

// MarkSent transitions pending|sent -> sent, stamps sent_at and increments
// the attempt counter. Returns false without error when the record is
// already terminal or unknown.
func (r *CommandRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, sent_at = $2, attempt = attempt + 1
WHERE command_id = $3 AND status IN ($4, $5)`,
		commands.StatusSent, sentAt, id, commands.StatusPending, commands.StatusSent)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// MarkAcked transitions pending|sent -> acked. Returns false when the
// record is already terminal or unknown (duplicate or unsolicited ack).
func (r *CommandRepository) MarkAcked(ctx context.Context, id string, ackedAt time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, acked_at = $2, error = ''
WHERE command_id = $3 AND status IN ($4, $5)`,
		commands.StatusAcked, ackedAt, id, commands.StatusPending, commands.StatusSent)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// MarkFailed transitions pending|sent -> failed with a reason. Terminal
// records are left untouched.
func (r *CommandRepository) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, error = $2
WHERE command_id = $3 AND status IN ($4, $5)`,
		commands.StatusFailed, reason, id, commands.StatusPending, commands.StatusSent)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// ListIncomplete returns non-terminal commands with attempts remaining and
// created before cutoff. Used by the boot recovery sweep; in-memory retry
// timers do not survive a restart.
func (r *CommandRepository) ListIncomplete(ctx context.Context, cutoff time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT command_id, device_id, kind, fan_speed, origin, origin_ref,
	status, attempt, max_attempts, created_at, sent_at, acked_at, error
FROM commands
WHERE status IN ($1, $2) AND created_at < $3
ORDER BY created_at ASC`,
		commands.StatusPending, commands.StatusSent, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

// ListByDevice lists command history for a device, newest first, within an
// optional time range.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("command repo: device id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT command_id, device_id, kind, fan_speed, origin, origin_ref,
	status, attempt, max_attempts, created_at, sent_at, acked_at, error
FROM commands
WHERE device_id = $1
	AND ($2::timestamptz IS NULL OR created_at >= $2)
	AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at DESC
LIMIT $4`, deviceID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var sentAt, ackedAt sql.NullTime
	var originRef, errMsg sql.NullString
	err := row.Scan(&cmd.CommandID, &cmd.DeviceID, &cmd.Kind, &cmd.FanSpeed,
		&cmd.Origin, &originRef, &cmd.Status, &cmd.Attempt, &cmd.MaxAttempts,
		&cmd.CreatedAt, &sentAt, &ackedAt, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, commands.ErrNotFound
		}
		return nil, err
	}
	cmd.OriginRef = originRef.String
	cmd.Error = errMsg.String
	if sentAt.Valid {
		cmd.SentAt = sentAt.Time
	}
	if ackedAt.Valid {
		cmd.AckedAt = ackedAt.Time
	}
	return &cmd, nil
}

func scanCommands(rows *sql.Rows) ([]commands.Command, error) {
	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	return result, rows.Err()
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
