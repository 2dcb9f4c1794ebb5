package model

import "time"

// LogAction classifies an audit log entry.
type LogAction int

const (
	ActionGetUser        LogAction = 1
	ActionCreateBlock    LogAction = 2
	ActionDestroyBlock   LogAction = 3
	ActionCreateMute     LogAction = 4
	ActionDestroyMute    LogAction = 5
	ActionGetFollowers   LogAction = 6
	ActionGetFriends     LogAction = 7
	ActionGetBlocks      LogAction = 8
	ActionGetMutes       LogAction = 9
	ActionMuteFollowers  LogAction = 10
	ActionBlockFollowers LogAction = 11
	ActionLogIn          LogAction = 12
	ActionLogOut         LogAction = 13
	ActionDisconnect     LogAction = 14
)

func (a LogAction) String() string {
	switch a {
	case ActionGetUser:
		return "get_user"
	case ActionCreateBlock:
		return "create_block"
	case ActionDestroyBlock:
		return "destroy_block"
	case ActionCreateMute:
		return "create_mute"
	case ActionDestroyMute:
		return "destroy_mute"
	case ActionGetFollowers:
		return "get_followers"
	case ActionGetFriends:
		return "get_friends"
	case ActionGetBlocks:
		return "get_blocks"
	case ActionGetMutes:
		return "get_mutes"
	case ActionMuteFollowers:
		return "mute_followers"
	case ActionBlockFollowers:
		return "block_followers"
	case ActionLogIn:
		return "log_in"
	case ActionLogOut:
		return "log_out"
	case ActionDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// LogMessage is an append-only audit record. Rows are written by the core
// as a side effect of mutations and fetches and are never updated.
type LogMessage struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"userId"`
	Time      time.Time  `db:"time" json:"time"`
	Action    *LogAction `db:"action" json:"action,omitempty"`
	AccountID *int64     `db:"account_id" json:"accountId,omitempty"`
	Until     *time.Time `db:"until" json:"until,omitempty"`
	Message   string     `db:"message" json:"message"`
}

type CreateLogMessageParams struct {
	UserID    int64
	Time      time.Time
	Action    *LogAction
	AccountID *int64
	Until     *time.Time
	Message   string
}
