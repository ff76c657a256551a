package biz

import "github.com/google/wire"

// ProviderSet 业务层提供者集合
var ProviderSet = wire.NewSet(
	NewAccountPool,
	NewRotator,
	NewPromptBuilder,
	NewCompressor,
	NewChatUsecase,
)
