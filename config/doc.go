// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 AgentGraph 运行时的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（AGENTGRAPH_ 前缀）的顺序叠加，
// 覆盖图执行参数、检查点后端（memory/redis/database/mongo）、
// HTTP 服务、日志与遥测。Watcher 以轮询方式监听配置文件，
// 变更后重新加载并回调，用于运行时调整日志级别等可热更新字段。
package config
