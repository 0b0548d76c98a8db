package models

// 进程内事件，通过 util.Sig() 分发
const (
	SigUserCreate          = "user.create"
	SigGenerationCreated   = "generation.created"
	SigGenerationCompleted = "generation.completed"
	SigGenerationDeleted   = "generation.deleted"
)
