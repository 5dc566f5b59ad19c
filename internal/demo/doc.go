// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package demo 提供 graphctl 与示例程序使用的内置演示图。

  - support_router  — 关键词分类后经条件边分派到 billing / technical / general，
    分类节点启用缓存
  - human_approval  — 超过自动审批额度的请求以 Interrupt 暂停，等待人工决定
  - research_fanout — 通过 Send 将每个主题分发给 research 节点，再汇总

节点均为确定性的纯函数，不依赖外部服务，便于测试与演示。
*/
package demo
