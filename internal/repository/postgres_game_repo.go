package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/dealhunter/internal/model"
)

// PostgresGameRepo はPostgreSQLを使用したゲームリポジトリ。
type PostgresGameRepo struct {
	db *sql.DB
}

// NewPostgresGameRepo はPostgresGameRepoを生成する。
func NewPostgresGameRepo(db *sql.DB) *PostgresGameRepo {
	return &PostgresGameRepo{db: db}
}

// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
func (r *PostgresGameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	game := &model.Game{}
	var coverURL, genre, platform sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, cover_url, genre, platform FROM games WHERE id = $1`,
		id,
	).Scan(&game.ID, &game.Title, &coverURL, &genre, &platform)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}

	game.CoverURL = nullStringValue(coverURL)
	game.Genre = nullStringValue(genre)
	game.Platform = nullStringValue(platform)

	return game, nil
}

// ListByIDs は指定ID群のゲームを一括取得する。存在しないIDは結果に含まれない。
func (r *PostgresGameRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, cover_url, genre, platform FROM games WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ゲームの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		game := &model.Game{}
		var coverURL, genre, platform sql.NullString

		if err := rows.Scan(&game.ID, &game.Title, &coverURL, &genre, &platform); err != nil {
			return nil, fmt.Errorf("ゲーム行の読み取りに失敗しました: %w", err)
		}

		game.CoverURL = nullStringValue(coverURL)
		game.Genre = nullStringValue(genre)
		game.Platform = nullStringValue(platform)

		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ゲーム一覧の走査に失敗しました: %w", err)
	}

	return games, nil
}

// ListPlaceholders は検索由来の仮ゲームを取得する。
func (r *PostgresGameRepo) ListPlaceholders(ctx context.Context) ([]*model.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, cover_url, genre, platform FROM games WHERE id LIKE $1`,
		model.PlaceholderIDPrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("仮ゲームの一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		game := &model.Game{}
		var coverURL, genre, platform sql.NullString

		if err := rows.Scan(&game.ID, &game.Title, &coverURL, &genre, &platform); err != nil {
			return nil, fmt.Errorf("仮ゲーム行の読み取りに失敗しました: %w", err)
		}

		game.CoverURL = nullStringValue(coverURL)
		game.Genre = nullStringValue(genre)
		game.Platform = nullStringValue(platform)

		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("仮ゲーム一覧の走査に失敗しました: %w", err)
	}

	return games, nil
}

// FindScrapedByTitle はスクレイプ由来ゲームをタイトルの部分一致で1件検索する。
// 見つからない場合はnilを返す。
func (r *PostgresGameRepo) FindScrapedByTitle(ctx context.Context, title string) (*model.Game, error) {
	game := &model.Game{}
	var coverURL, genre, platform sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, cover_url, genre, platform
		 FROM games
		 WHERE id LIKE $1 AND title ILIKE '%' || $2 || '%'
		 ORDER BY length(title) ASC
		 LIMIT 1`,
		model.ScrapedIDPrefix+"%", title,
	).Scan(&game.ID, &game.Title, &coverURL, &genre, &platform)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タイトルによるゲームの検索に失敗しました: %w", err)
	}

	game.CoverURL = nullStringValue(coverURL)
	game.Genre = nullStringValue(genre)
	game.Platform = nullStringValue(platform)

	return game, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ GameRepository = (*PostgresGameRepo)(nil)
