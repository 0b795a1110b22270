// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供网关服务端程序入口。

# 概述

cmd/gateway 是网关的可执行入口：一个 HTTP 服务，在单个 OpenAI 兼容的
聊天补全 API 之后代理一个或多个 LLM 后端，执行按客户端的准入控制，
并以 SSE 或完整 JSON 文档的形式转发响应。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health（无 migrate：网关不持有任何数据库）
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、CORS、IPRateLimiter（基于 IP 的本地限流，作为
    分布式限流器之前的第一道防线）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 关闭队列 worker → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
