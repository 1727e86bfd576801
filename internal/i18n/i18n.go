// Package i18n holds the English and Chinese string tables of the game,
// including the system instruction that gives the voice guide its persona.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Lang is a supported display language.
type Lang string

const (
	English Lang = "en"
	Chinese Lang = "zh"
)

// Default is used for unknown or missing languages.
const Default = English

// IsValid reports whether l is a supported language.
func (l Lang) IsValid() bool {
	return l == English || l == Chinese
}

// Toggle returns the other supported language.
func (l Lang) Toggle() Lang {
	if l == Chinese {
		return English
	}
	return Chinese
}

// Tag returns the BCP 47 tag of l.
func (l Lang) Tag() language.Tag {
	if l == Chinese {
		return language.Chinese
	}
	return language.English
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})

// Parse maps a language tag or locale such as "zh-CN", "zh_CN.UTF-8" or
// "en-GB" to the closest supported [Lang]. ok is false when nothing matched
// with at least low confidence; l is then [Default].
func Parse(s string) (l Lang, ok bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return Default, false
	}
	tag, err := language.Parse(s)
	if err != nil {
		return Default, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Default, false
	}
	if idx == 1 {
		return Chinese, true
	}
	return English, true
}

// Key identifies a translated string.
type Key string

const (
	Level               Key = "level"
	SeekerOfCalm        Key = "seekerOfCalm"
	Journal             Key = "journal"
	Breathe             Key = "breathe"
	TapToClearFog       Key = "tapToClearFog"
	ListeningToUniverse Key = "listeningToUniverse"
	MentalClarity       Key = "mentalClarity"
	FindEpiphany        Key = "findEpiphany"
	RequiresClarity     Key = "requiresClarity"
	Close               Key = "close"
	YourJournal         Key = "yourJournal"
	NoEchoes            Key = "noEchoes"
	NoEchoesSub         Key = "noEchoesSub"
	NewDiscovery        Key = "newDiscovery"
	ShareWisdom         Key = "shareWisdom"
	Copied              Key = "copied"
	GuideTitle          Key = "guideTitle"
	GuideSubtitle       Key = "guideSubtitle"
	EndConversation     Key = "endConversation"
	Connecting          Key = "connecting"
	SystemInstruction   Key = "systemInstruction"

	// Terminal-only messages.
	NotEnoughClarity  Key = "notEnoughClarity"
	CredentialMissing Key = "credentialMissing"
	EchoFaded         Key = "echoFaded"
	Music             Key = "music"
	On                Key = "on"
	Off               Key = "off"
	You               Key = "you"
	Guide             Key = "guide"
	ConnectionLost    Key = "connectionLost"
	ConversationEnded Key = "conversationEnded"
)

var tables = map[Lang]map[Key]string{
	English: {
		Level:               "Level",
		SeekerOfCalm:        "Seeker of Calm",
		Journal:             "Journal",
		Breathe:             "Breathe",
		TapToClearFog:       "Tap to Clear Fog",
		ListeningToUniverse: "Listening to the universe...",
		MentalClarity:       "Mental Clarity",
		FindEpiphany:        "Find Epiphany",
		RequiresClarity:     "Requires {{cost}} Clarity • Unlocks a Soul Echo",
		Close:               "Close",
		YourJournal:         "Your Journal",
		NoEchoes:            "No echoes found yet.",
		NoEchoesSub:         "Breathe, focus, and find your first epiphany.",
		NewDiscovery:        "New Discovery",
		ShareWisdom:         "Share Wisdom",
		Copied:              "Copied to clipboard!",
		GuideTitle:          "Speak with your Guide",
		GuideSubtitle:       "Your AI companion is listening. Share your thoughts.",
		EndConversation:     "End Conversation",
		Connecting:          "Connecting...",
		SystemInstruction:   "You are a wise and empathetic psychological guide in a relaxation game. Your name is Kai. Respond to the user with warmth, encouragement, and gentle wisdom. Keep your responses concise and soothing. Your goal is to help the user feel calm and understood.",

		NotEnoughClarity:  "Not enough clarity yet ({{focus}} / {{cost}}).",
		CredentialMissing: "An API key is needed. Run `soulecho setup` to add one.",
		EchoFaded:         "The echo faded before it could take shape.",
		Music:             "Music",
		On:                "on",
		Off:               "off",
		You:               "You",
		Guide:             "Kai",
		ConnectionLost:    "The connection to your guide was lost.",
		ConversationEnded: "Conversation ended.",
	},
	Chinese: {
		Level:               "等级",
		SeekerOfCalm:        "宁静探索者",
		Journal:             "日志",
		Breathe:             "呼吸",
		TapToClearFog:       "点击以清除迷雾",
		ListeningToUniverse: "聆听宇宙的声音...",
		MentalClarity:       "心境清晰度",
		FindEpiphany:        "寻找顿悟",
		RequiresClarity:     "需要 {{cost}} 清晰度 • 解锁一个灵魂回响",
		Close:               "关闭",
		YourJournal:         "你的日志",
		NoEchoes:            "尚未发现任何回响。",
		NoEchoesSub:         "呼吸，专注，找到你的第一个顿悟。",
		NewDiscovery:        "新发现",
		ShareWisdom:         "分享智慧",
		Copied:              "已复制到剪贴板！",
		GuideTitle:          "与你的向导交谈",
		GuideSubtitle:       "你的AI伙伴正在倾听。分享你的想法。",
		EndConversation:     "结束对话",
		Connecting:          "连接中...",
		SystemInstruction:   "你是一款放松游戏中的智慧而富有同情心的心理向导。你的名字是凯。以温暖、鼓励和温柔的智慧回应用户。保持你的回答简洁而舒缓。你的目标是帮助用户感到平静和被理解。",

		NotEnoughClarity:  "清晰度还不够（{{focus}} / {{cost}}）。",
		CredentialMissing: "需要一个 API 密钥。运行 `soulecho setup` 添加。",
		EchoFaded:         "回响在成形之前消散了。",
		Music:             "音乐",
		On:                "开",
		Off:               "关",
		You:               "你",
		Guide:             "凯",
		ConnectionLost:    "与向导的连接已断开。",
		ConversationEnded: "对话已结束。",
	},
}

// T returns the translation of key in l. Missing entries fall back to
// English, then to the key itself. Each "{{name}}" placeholder is replaced
// by the value following name in args.
func T(l Lang, key Key, args ...any) string {
	s, ok := tables[l][key]
	if !ok {
		if s, ok = tables[Default][key]; !ok {
			s = string(key)
		}
	}
	for i := 0; i+1 < len(args); i += 2 {
		name, _ := args[i].(string)
		s = strings.ReplaceAll(s, "{{"+name+"}}", fmt.Sprint(args[i+1]))
	}
	return s
}

// Instruction returns the voice guide system instruction for l.
func Instruction(l Lang) string {
	return T(l, SystemInstruction)
}
