package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/auction-marketplace/internal/clock"
    "github.com/iliyamo/auction-marketplace/internal/model"
)

// SQLStore persists auctions in the `auctions` table.  The same statements
// run on MySQL (production) and SQLite (local runs and tests), so only
// portable SQL with `?` placeholders is used.  Timestamps are stored as
// UTC unix milliseconds.
//
// Compare-and-swap is a single conditional UPDATE guarded by
// `WHERE id = ? AND revision = ?`; the database applies it atomically, so
// no transaction or row lock is held between the read and the write.
type SQLStore struct {
    db    *sql.DB
    clock clock.Clock
}

// NewSQLStore returns a store bound to db.  The schema must already exist
// (see database.Migrate).
func NewSQLStore(db *sql.DB, c clock.Clock) *SQLStore {
    if c == nil {
        c = clock.System{}
    }
    return &SQLStore{db: db, clock: c}
}

// DB exposes the underlying sql.DB for health checks.
func (r *SQLStore) DB() *sql.DB { return r.db }

const auctionColumns = `id, owner_id, base_price_cents, starts_at_ms, ends_at_ms, status,
    current_price_cents, current_bidder_id, payment_ref, revision,
    title, description, image_ref, seller_username, seller_contact, seller_email,
    created_at_ms, updated_at_ms, closed_at_ms, paid_at_ms`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
    Scan(dest ...any) error
}

func scanAuction(s rowScanner) (model.AuctionItem, error) {
    var (
        a                                     model.AuctionItem
        status                                string
        startsMs, endsMs, createdMs, updateMs int64
        closedMs, paidMs                      sql.NullInt64
    )
    err := s.Scan(
        &a.ID, &a.OwnerID, &a.BasePrice, &startsMs, &endsMs, &status,
        &a.CurrentPrice, &a.CurrentBidderID, &a.PaymentReference, &a.Revision,
        &a.Title, &a.Description, &a.ImageRef, &a.Seller.Username, &a.Seller.ContactNumber, &a.Seller.Email,
        &createdMs, &updateMs, &closedMs, &paidMs,
    )
    if err != nil {
        return model.AuctionItem{}, err
    }
    a.State = model.AuctionState(status)
    a.StartTime = fromMillis(startsMs)
    a.EndTime = fromMillis(endsMs)
    a.CreatedAt = fromMillis(createdMs)
    a.UpdatedAt = fromMillis(updateMs)
    if closedMs.Valid {
        t := fromMillis(closedMs.Int64)
        a.ClosedAt = &t
    }
    if paidMs.Valid {
        t := fromMillis(paidMs.Int64)
        a.PaidAt = &t
    }
    return a, nil
}

func (r *SQLStore) Get(ctx context.Context, id string) (model.AuctionItem, error) {
    q := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
    a, err := scanAuction(r.db.QueryRowContext(ctx, q, id))
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.AuctionItem{}, ErrNotFound
        }
        return model.AuctionItem{}, unavailable("get auction", err)
    }
    return a, nil
}

func (r *SQLStore) Create(ctx context.Context, item model.AuctionItem) (string, error) {
    a := prepareCreate(item, r.clock.Now())
    q := `INSERT INTO auctions (` + auctionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q,
        a.ID, a.OwnerID, a.BasePrice, toMillis(a.StartTime), toMillis(a.EndTime), string(a.State),
        a.CurrentPrice, a.CurrentBidderID, a.PaymentReference, a.Revision,
        a.Title, a.Description, a.ImageRef, a.Seller.Username, a.Seller.ContactNumber, a.Seller.Email,
        toMillis(a.CreatedAt), toMillis(a.UpdatedAt), nullMillis(a.ClosedAt), nullMillis(a.PaidAt),
    )
    if err != nil {
        return "", unavailable("create auction", err)
    }
    return a.ID, nil
}

func (r *SQLStore) CompareAndSwap(ctx context.Context, id string, expectedRevision int64, fn Mutator) (model.AuctionItem, error) {
    current, err := r.Get(ctx, id)
    if err != nil {
        return model.AuctionItem{}, err
    }
    if current.Revision != expectedRevision {
        return model.AuctionItem{}, ErrConflict
    }
    next, err := applyMutator(current, fn, r.clock.Now())
    if err != nil {
        return model.AuctionItem{}, err
    }
    const q = `UPDATE auctions SET
        status = ?, current_price_cents = ?, current_bidder_id = ?, payment_ref = ?, revision = ?,
        base_price_cents = ?, starts_at_ms = ?, ends_at_ms = ?,
        title = ?, description = ?, image_ref = ?, seller_username = ?, seller_contact = ?, seller_email = ?,
        updated_at_ms = ?, closed_at_ms = ?, paid_at_ms = ?
        WHERE id = ? AND revision = ?`
    res, err := r.db.ExecContext(ctx, q,
        string(next.State), next.CurrentPrice, next.CurrentBidderID, next.PaymentReference, next.Revision,
        next.BasePrice, toMillis(next.StartTime), toMillis(next.EndTime),
        next.Title, next.Description, next.ImageRef, next.Seller.Username, next.Seller.ContactNumber, next.Seller.Email,
        toMillis(next.UpdatedAt), nullMillis(next.ClosedAt), nullMillis(next.PaidAt),
        id, expectedRevision,
    )
    if err != nil {
        return model.AuctionItem{}, unavailable("update auction", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return model.AuctionItem{}, unavailable("update auction", err)
    }
    if n == 0 {
        // Someone else committed between our read and our write, or the
        // row was deleted.  Either way the caller must re-read.
        return model.AuctionItem{}, ErrConflict
    }
    return next, nil
}

func (r *SQLStore) Delete(ctx context.Context, id string, expectedRevision int64) error {
    res, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ? AND revision = ?`, id, expectedRevision)
    if err != nil {
        return unavailable("delete auction", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return unavailable("delete auction", err)
    }
    if n > 0 {
        return nil
    }
    if _, err := r.Get(ctx, id); err != nil {
        return err
    }
    return ErrConflict
}

func (r *SQLStore) List(ctx context.Context) ([]model.AuctionItem, error) {
    q := `SELECT ` + auctionColumns + ` FROM auctions ORDER BY created_at_ms ASC, id ASC`
    return r.query(ctx, "list auctions", q)
}

func (r *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]model.AuctionItem, error) {
    q := `SELECT ` + auctionColumns + ` FROM auctions WHERE owner_id = ? ORDER BY created_at_ms ASC, id ASC`
    return r.query(ctx, "list auctions by owner", q, ownerID)
}

func (r *SQLStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]model.AuctionItem, error) {
    q := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND ends_at_ms <= ? ORDER BY ends_at_ms ASC, id ASC`
    args := []any{string(model.StateOpen), toMillis(now)}
    if limit > 0 {
        q += ` LIMIT ?`
        args = append(args, limit)
    }
    return r.query(ctx, "list expired auctions", q, args...)
}

func (r *SQLStore) query(ctx context.Context, op, q string, args ...any) ([]model.AuctionItem, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, unavailable(op, err)
    }
    defer rows.Close()
    result := []model.AuctionItem{}
    for rows.Next() {
        a, err := scanAuction(rows)
        if err != nil {
            return nil, unavailable(op, err)
        }
        result = append(result, a)
    }
    if err := rows.Err(); err != nil {
        return nil, unavailable(op, err)
    }
    return result, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
    if t == nil {
        return sql.NullInt64{}
    }
    return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
