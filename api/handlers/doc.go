// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentGraph HTTP API 的请求处理器实现。

# 概述

handlers 包把已编译的图（graph.CompiledGraph）暴露为 HTTP 与 WebSocket 端点：
运行与恢复、流式事件、线程状态查询/修改/历史、拓扑导出，以及健康检查和
统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - Runtime          — 擦除状态类型后的图运行时接口（状态以 JSON 进出）
  - GraphRuntime     — Runtime 的泛型实现，包装 CompiledGraph[S]
  - GraphHandler     — /v1/graphs 下的全部路由
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable、node
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，支持 Hijack
  - PingCheck        — 以 ping 函数实现的健康检查（检查点后端等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - 图错误 → api.Error → HTTP 状态码自动映射
  - WebSocket 流式输出：首帧为 InvokeRequest，之后逐条推送 StreamEvent
  - 拓扑导出：json、yaml、mermaid、dot、svg
*/
package handlers
