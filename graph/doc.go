// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package graph 提供泛型状态图执行引擎。

# 概述

graph 包将命名节点（Node）通过固定边与条件边连接成状态机，按步骤执行，
每一步完成后写入 Checkpoint，支持人工审批式的中断与恢复、节点结果缓存
以及逐步流式观察。整个引擎对用户自定义的 State 类型保持泛型。

# 核心接口与类型

  - State[S]          — 状态约束，Merge(update S) S 定义部分更新如何合并
  - Node[S]           — 节点接口 Process(ctx, state) (NodeOutput[S], error)
  - NodeOutput[S]     — 普通状态输出或 Command 控制流指令
  - Command[S]        — Goto / GotoWithUpdate / Update / End / Send / Resume / Interrupt
  - StateGraph[S]     — Fluent 构建器，Compile 时做结构校验
  - CompiledGraph[S]  — 不可变的可执行图：Invoke / Stream / StreamModes
  - Checkpointer      — 按 thread id 持久化的存储端口（Put / Get / List）
  - MemorySaver       — 进程内 Checkpointer 参考实现

# 主要能力

  - 路由：固定边优先，其次条件边；Command 可绕过边直接跳转
  - 中断：InterruptBefore / InterruptAfter 声明式暂停，Interrupt(value) 命令式暂停
  - 恢复：使用相同 thread id 再次调用，WithResume 携带审批结果
  - 缓存：CachePolicy 按 (节点名, 输入状态 JSON 哈希) 记忆结果，支持 TTL
  - 安全：单次调用的节点执行次数上限（默认 100）
  - 流式：values / updates / messages / debug / custom 五种模式
  - 可视化：Mermaid、DOT 文本及 JSON / YAML 拓扑导出
*/
package graph
