// Package action decodes the wire-level callback identifiers coming from
// the chat platform ("t:123", "letter:A:2", ...) into typed actions exactly
// once, at the boundary. Everything past Decode dispatches on the Kind tag
// instead of re-parsing strings.
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ecervera/temario/internal/errors"
)

// Kind tags an action variant.
type Kind string

const (
	// KindMainMenu returns to the catalog's top-level menu.
	KindMainMenu Kind = "main_menu"
	// KindLetterPage shows one page of a letter bucket.
	KindLetterPage Kind = "letter_page"
	// KindRecent shows the most recently created topics.
	KindRecent Kind = "recent"
	// KindSearch runs a name search.
	KindSearch Kind = "search"
	// KindSendTopic starts a relay job for one topic.
	KindSendTopic Kind = "send_topic"
	// KindDeleteTopic removes one topic (admin).
	KindDeleteTopic Kind = "delete_topic"
	// KindMarkCatalog designates the media-catalog topic (admin).
	KindMarkCatalog Kind = "mark_catalog"
	// KindMute toggles a topic's muted flag (admin).
	KindMute Kind = "mute"
	// KindReset drops all topic data (admin).
	KindReset Kind = "reset"
)

// Action is one decoded user interaction with its typed payload.
type Action struct {
	Kind    Kind
	TopicID string
	Letter  string
	Page    int
	Query   string
	Muted   bool
}

// AdminOnly reports whether the action requires the designated
// administrator.
func (a Action) AdminOnly() bool {
	switch a.Kind {
	case KindDeleteTopic, KindMarkCatalog, KindMute, KindReset:
		return true
	default:
		return false
	}
}

// Decode parses one wire identifier. The wire forms are:
//
//	menu                 main menu
//	recent               recent topics
//	letter:<L>:<page>    letter page ("#" for the symbol bucket)
//	q:<query>            name search
//	t:<id>               send topic
//	del:<id>             delete topic
//	cat:<id>             mark as catalog
//	mute:<id>:<0|1>      set muted
//	reset                reset all data
func Decode(data string) (Action, error) {
	switch data {
	case "menu":
		return Action{Kind: KindMainMenu}, nil
	case "recent":
		return Action{Kind: KindRecent}, nil
	case "reset":
		return Action{Kind: KindReset}, nil
	}

	prefix, rest, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}, badAction(data)
	}

	switch prefix {
	case "t":
		if rest == "" {
			return Action{}, badAction(data)
		}
		return Action{Kind: KindSendTopic, TopicID: rest}, nil

	case "del":
		if rest == "" {
			return Action{}, badAction(data)
		}
		return Action{Kind: KindDeleteTopic, TopicID: rest}, nil

	case "cat":
		if rest == "" {
			return Action{}, badAction(data)
		}
		return Action{Kind: KindMarkCatalog, TopicID: rest}, nil

	case "q":
		return Action{Kind: KindSearch, Query: rest}, nil

	case "letter":
		letter, pageStr, ok := strings.Cut(rest, ":")
		if !ok || letter == "" {
			return Action{}, badAction(data)
		}
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return Action{}, badAction(data)
		}
		return Action{Kind: KindLetterPage, Letter: letter, Page: page}, nil

	case "mute":
		id, flag, ok := strings.Cut(rest, ":")
		if !ok || id == "" || (flag != "0" && flag != "1") {
			return Action{}, badAction(data)
		}
		return Action{Kind: KindMute, TopicID: id, Muted: flag == "1"}, nil

	default:
		return Action{}, badAction(data)
	}
}

// Encode renders the action back to its wire identifier.
func (a Action) Encode() string {
	switch a.Kind {
	case KindMainMenu:
		return "menu"
	case KindRecent:
		return "recent"
	case KindReset:
		return "reset"
	case KindSendTopic:
		return "t:" + a.TopicID
	case KindDeleteTopic:
		return "del:" + a.TopicID
	case KindMarkCatalog:
		return "cat:" + a.TopicID
	case KindSearch:
		return "q:" + a.Query
	case KindLetterPage:
		return fmt.Sprintf("letter:%s:%d", a.Letter, a.Page)
	case KindMute:
		flag := "0"
		if a.Muted {
			flag = "1"
		}
		return fmt.Sprintf("mute:%s:%s", a.TopicID, flag)
	default:
		return ""
	}
}

func badAction(data string) error {
	return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unrecognized action %q", data), nil)
}
