package db

type Session struct {
	RunID       string `gorm:"column:run_id;primaryKey"`
	Command     string `gorm:"column:command;not null;default:''"`
	Cwd         string `gorm:"column:cwd;not null;default:''"`
	RiskMode    string `gorm:"column:risk_mode;not null;default:''"`
	ExitReason  string `gorm:"column:exit_reason;not null;default:''"`
	ExitCode    int    `gorm:"column:exit_code;not null;default:0"`
	PID         int    `gorm:"column:pid;not null;default:0"`
	Heartbeats  int    `gorm:"column:heartbeats;not null;default:0"`
	PromptCount int    `gorm:"column:prompt_count;not null;default:0"`
	LogPath     string `gorm:"column:log_path;not null;default:''"`
	Transcript  string `gorm:"column:transcript;not null;default:''"`
	StartedAt   int64  `gorm:"column:started_at;not null;default:0"`
	CompletedAt int64  `gorm:"column:completed_at;not null;default:0"`
}

func (Session) TableName() string { return "sessions" }

type PromptEvent struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string `gorm:"column:run_id;not null;index"`
	Kind      string `gorm:"column:kind;not null;default:''"`
	Text      string `gorm:"column:text;not null;default:''"`
	Source    string `gorm:"column:source;not null;default:''"`
	Response  string `gorm:"column:response;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (PromptEvent) TableName() string { return "prompt_events" }
