// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 AgentGraph 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 图执行通过 Providers.Tracer 获得 tracer，产生 graph.invoke 与
// graph.node 两级 span。遥测禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
