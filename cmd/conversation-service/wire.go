//go:build wireinject
// +build wireinject

package main

import (
	"neurocopilot/cmd/conversation-service/internal/biz"
	"neurocopilot/cmd/conversation-service/internal/conf"
	"neurocopilot/cmd/conversation-service/internal/data"
	"neurocopilot/cmd/conversation-service/internal/server"
	"neurocopilot/cmd/conversation-service/internal/service"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// initApp 初始化应用
func initApp(config *conf.Config, logger *zap.Logger) (*App, func(), error) {
	panic(wire.Build(
		configSet,
		data.ProviderSet,
		infraSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		wire.Struct(new(App), "*"),
	))
}
