// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者情報のテキスト項目からHTMLマークアップを除去する。
// 保存する値は常にプレーンテキストとする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去し、前後の空白を取り除いた文字列を返す。
	// script, styleの中身も除去する。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// Policyはスレッドセーフなので1つを共有する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses はエンティティの多重エスケープを展開する最大回数。
const maxSanitizePasses = 10

// Sanitize はタグ除去とエンティティのデコードを結果が変わらなくなるまで繰り返す。
// StrictPolicyは&などをエスケープするため、デコードしないと "A &amp; B" のまま保存される。
// デコードで現れたタグ（"&lt;script&gt;" など）は次の周回で除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	v := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(v))
		if next == v {
			return strings.TrimSpace(v)
		}
		v = next
	}

	// 収束しない入力は保存しない（呼び出し側で必須項目エラーになる）
	return ""
}
