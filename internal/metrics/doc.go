// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 服务、
图执行与检查点数据库三个维度。

# 概述

Collector 通过 promauto 在指定 Registerer 上注册全部指标，
所有指标按 namespace 隔离。Collector 实现 graph.Observer，
编译图时以 graph.WithObserver 传入即可记录运行、节点、缓存、
检查点与中断事件。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为
    2xx/3xx/4xx/5xx。
  - 图执行指标：运行总数（complete/interrupted/error）、运行耗时、
    在途运行数、节点执行次数与耗时、检查点写入数（按来源）、中断次数。
  - 节点缓存指标：命中与未命中计数，按 graph/node 分组。
  - 数据库指标：检查点连接池的活跃/空闲连接数 Gauge。
*/
package metrics
