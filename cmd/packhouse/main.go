package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/greenyard/packhouse/internal/clock"
	"github.com/greenyard/packhouse/internal/config"
	"github.com/greenyard/packhouse/internal/logger"
	"github.com/greenyard/packhouse/internal/migration"
	"github.com/greenyard/packhouse/internal/server"
	"github.com/greenyard/packhouse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
