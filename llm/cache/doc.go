// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 LLM 请求的多级缓存实现，通过本地 LRU 与 Redis 协同
减少重复调用，降低延迟与成本。

# 概述

相同或相似的 LLM 请求在实际业务中频繁出现。本包提供 Prompt 级
多级缓存（本地 LRU + Redis），用于缓存任意可序列化请求的响应。

# 核心接口

  - PromptCache：Prompt 缓存接口，定义 Get/Set/Delete/GenerateKey 操作。
  - MultiLevelCache：多级缓存实现，本地 LRU 作为 L1、Redis 作为 L2。

# 主要能力

  - 多级缓存：L1 本地 LRU（O(1) 操作）+ L2 Redis，自动回填。
  - 缓存键：对请求 JSON 序列化后取 SHA-256 前 16 字节，不依赖请求的
    具体类型。
  - 可缓存判断：默认跳过含 Tools 字段的请求，避免缓存有副作用的调用。
  - 失效：InvalidateByVersion 清空全部本地缓存，不按版本筛选，也不删除 Redis 中的条目。

# 使用方式

	cfg := cache.DefaultCacheConfig()
	mlc := cache.NewMultiLevelCache(redisClient, cfg, logger)
	key := mlc.GenerateKey(req)
	entry, err := mlc.Get(ctx, key)
*/
package cache
