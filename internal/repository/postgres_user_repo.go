package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// リージョン購読とウィッシュリストの参照もここで扱う。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// ListWishlistUserIDs は指定ゲームをウィッシュリストに入れているユーザーIDを返す。
func (r *PostgresUserRepo) ListWishlistUserIDs(ctx context.Context, gameID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM user_wishlist WHERE game_id = $1 ORDER BY added_at ASC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("ウィッシュリストユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ユーザーID行の読み取りに失敗しました: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ウィッシュリストユーザーの走査に失敗しました: %w", err)
	}

	return userIDs, nil
}

// ListRegionSubscriberIDs は指定リージョンを購読しているユーザーIDを返す。
func (r *PostgresUserRepo) ListRegionSubscriberIDs(ctx context.Context, regionCode string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM user_regions WHERE region_code = $1`,
		regionCode,
	)
	if err != nil {
		return nil, fmt.Errorf("リージョン購読者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ユーザーID行の読み取りに失敗しました: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リージョン購読者の走査に失敗しました: %w", err)
	}

	return userIDs, nil
}

// ReassignWishlist はウィッシュリストの参照先ゲームを付け替える。
// 付け替え先を既にウィッシュリストに入れているユーザーの行は重複するため削除する。
func (r *PostgresUserRepo) ReassignWishlist(ctx context.Context, fromGameID, toGameID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_wishlist w SET game_id = $2
		 WHERE w.game_id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM user_wishlist d
		       WHERE d.user_id = w.user_id AND d.game_id = $2
		   )`,
		fromGameID, toGameID,
	); err != nil {
		return fmt.Errorf("ウィッシュリストの付け替えに失敗しました: %w", err)
	}

	// 付け替えできなかった残り（重複する行）を削除する。
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_wishlist WHERE game_id = $1`,
		fromGameID,
	); err != nil {
		return fmt.Errorf("重複ウィッシュリスト行の削除に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
