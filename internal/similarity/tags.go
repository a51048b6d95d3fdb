package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pbaille/coffeechat/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// keywords is the fixed dictionary history text is scanned against.
// Order matters: derived tags come out in this order.
var keywords = []string{
	"ai", "ml", "llm", "nlp", "cv",
	"데이터", "핀테크", "투자", "금융", "블록체인",
	"창업", "스타트업", "취업", "이직",
	"백엔드", "프론트엔드", "ios", "android",
	"pm", "디자인", "마케팅", "세일즈", "보안",
	"클라우드", "게임", "리서치",
	"infra", "devops", "mle", "product",
}

// Keywords returns a copy of the derivation dictionary
func Keywords() []string {
	return append([]string(nil), keywords...)
}

// NormalizeTags trims, uppercases and deduplicates tags, dropping empties and
// keeping at most domain.MaxTags in first-seen order.
func NormalizeTags(tags []string) []string {
	return normalizeTags(tags, domain.MaxTags)
}

func normalizeTags(tags []string, limit int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToUpper(strings.TrimSpace(norm.NFKC.String(t)))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

// DeriveTags scans history text for dictionary keywords.
//
// Non-ASCII keywords match anywhere inside a token, so Korean compounds
// ("빅데이터") and nouns with particles ("스타트업에서") both count. ASCII
// keywords must not touch another ASCII letter or digit: "ai" fires on
// "생성형ai" but not on "said".
func DeriveTags(text string) []string {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return nil
	}

	var matched []string
	for _, kw := range keywords {
		if containsKeyword(tokens, kw) {
			matched = append(matched, kw)
		}
	}
	return NormalizeTags(matched)
}

func containsKeyword(tokens []string, kw string) bool {
	ascii := isASCII(kw)
	for _, tok := range tokens {
		if !ascii {
			if strings.Contains(tok, kw) {
				return true
			}
			continue
		}
		if containsBounded(tok, kw) {
			return true
		}
	}
	return false
}

// containsBounded reports whether kw occurs in tok with no ASCII letter or
// digit directly before or after it
func containsBounded(tok, kw string) bool {
	for from := 0; from <= len(tok)-len(kw); {
		i := strings.Index(tok[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if !asciiAlnumBefore(tok, start) && !asciiAlnumAt(tok, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func asciiAlnumBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isASCIIAlnum(r)
}

func asciiAlnumAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isASCIIAlnum(r)
}

func isASCIIAlnum(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Tokens lowercases text, replaces every run of characters that are neither
// letters nor numbers with a space, and splits on whitespace.
func Tokens(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// MergeTags is the set union of explicit and derived tags, explicit first
func MergeTags(explicit, derived []string) []string {
	merged := make([]string, 0, len(explicit)+len(derived))
	merged = append(merged, explicit...)
	merged = append(merged, derived...)
	return normalizeTags(merged, len(merged))
}
