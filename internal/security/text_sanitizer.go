// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はスクレイプしたカードから取り出したテキスト
// （タイトル・ジャンルなど）をサニタイズする。外部サイト由来のテキストは
// マークアップを含み得るため、保存前に必ず通す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイプ由来テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はテキストからすべてのHTMLタグを除去し、
	// エンティティをデコードして前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyを使用するため、いかなるタグ・属性も通過しない。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからタグを除去し、エンティティをデコードして返す。
// bluemondayはタグ除去後にエンティティをエスケープするため、
// 表示用テキストとして扱えるようUnescapeStringで戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
