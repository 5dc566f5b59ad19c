// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责为 SQL 检查点存储打开 GORM 连接并管理连接池。

# 概述

Open 根据 config.DatabaseConfig 选择方言（postgres、mysql、
glebarez 纯 Go sqlite），打开连接后交给 PoolManager 统一设置
最大连接数、空闲回收与生命周期，并在后台定时 Ping 探活。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()。
  - PoolConfig：连接池参数，可由 PoolConfigFrom 从配置推导。
*/
package database
