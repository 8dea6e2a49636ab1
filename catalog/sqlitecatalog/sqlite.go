// Package sqlitecatalog is a database/sql-backed evtx.CatalogProvider,
// querying a messages/providers schema.
package sqlitecatalog

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/NickSmet/ts-evtx/evtx"
)

const getQuery = `
SELECT message
FROM messages LEFT JOIN providers ON messages.provider_id = providers.id
WHERE providers.name = ? AND messages.event_id = ?
ORDER BY messages.locale = ? DESC, messages.id ASC
`

const countQuery = `SELECT count(*) FROM messages`

// Provider is a sqlite-backed catalog. The schema mirrors a
// messages/providers pair: one row per (provider, event_id, locale,
// message), joined on providers.id.
type Provider struct {
	db     *sql.DB
	get    *sql.Stmt
	locale string
	path   string
}

// Open opens the sqlite database at path and prepares the lookup
// statement. defaultLocale is used by Info and as the GetCandidates
// ordering preference.
func Open(path, defaultLocale string) (*Provider, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open message catalog %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping message catalog %s", path)
	}
	stmt, err := db.Prepare(getQuery)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "prepare message lookup")
	}
	return &Provider{db: db, get: stmt, locale: defaultLocale, path: path}, nil
}

func (p *Provider) Get(ctx context.Context, provider string, eventID uint32, locale string) (string, bool, error) {
	if locale == "" {
		locale = p.locale
	}
	row := p.get.QueryRowContext(ctx, provider, eventID, locale)
	var message string
	if err := row.Scan(&message); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "query message for %s/%d", provider, eventID)
	}
	return message, true, nil
}

func (p *Provider) GetCandidates(ctx context.Context, provider string, eventID uint32, locale string) ([]string, error) {
	if locale == "" {
		locale = p.locale
	}
	rows, err := p.get.QueryContext(ctx, provider, eventID, locale)
	if err != nil {
		return nil, errors.Wrapf(err, "query candidates for %s/%d", provider, eventID)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, errors.Wrap(err, "scan candidate message")
		}
		out = append(out, message)
	}
	return out, rows.Err()
}

func (p *Provider) GetBatch(ctx context.Context, reqs []evtx.BatchRequest) ([]string, []bool, error) {
	texts := make([]string, len(reqs))
	oks := make([]bool, len(reqs))
	for i, r := range reqs {
		text, ok, err := p.Get(ctx, r.Provider, r.EventID, r.Locale)
		if err != nil {
			return nil, nil, err
		}
		texts[i], oks[i] = text, ok
	}
	return texts, oks, nil
}

func (p *Provider) Info(ctx context.Context) (evtx.CatalogInfo, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return evtx.CatalogInfo{}, errors.Wrap(err, "count messages")
	}
	return evtx.CatalogInfo{
		Source:     p.path,
		Locale:     p.locale,
		EntryCount: count,
	}, nil
}

func (p *Provider) Close() error {
	if err := p.get.Close(); err != nil {
		p.db.Close()
		return err
	}
	return p.db.Close()
}
