package ai

import "strings"

// MentorPersona is the fixed persona and output contract placed at the top of every prompt.
const MentorPersona = `あなたは経験豊富なキャリアと人生のメンターです。
相談者の状況に寄り添いながら、抽象論ではなく具体的で実行できる助言を返してください。

# 出力ルール（厳守）
- 1行目は必ず「【結論】」から始め、結論を一言で述べる
- 次に「【アクション】」として、具体的な行動を3つの期間に分けて箇条書きにする
  - 今日：
  - 今週：
  - 今月：
- 質問は最後に1つまで。本当に必要なときだけ聞く
- 会話の中ですでにした質問を繰り返さない
- こまめに改行し、長い段落を作らない
- できるだけ箇条書きを使う`

const (
	historySectionLabel = "【最近の会話】"
	latestSectionLabel  = "【ユーザーの最新メッセージ】"
)

// BuildPrompt assembles the persona block, the transcript and the trigger text.
// It is deterministic: equal inputs always produce byte-identical prompts.
func BuildPrompt(transcript []string, userText string) string {
	var builder strings.Builder
	builder.WriteString(MentorPersona)

	builder.WriteString("\n\n")
	builder.WriteString(historySectionLabel)
	builder.WriteString("\n")
	builder.WriteString(strings.Join(transcript, "\n"))

	builder.WriteString("\n\n")
	builder.WriteString(latestSectionLabel)
	builder.WriteString("\n")
	builder.WriteString(strings.TrimSpace(userText))

	return builder.String()
}
