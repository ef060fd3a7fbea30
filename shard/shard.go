// Package shard 把按 key 路由的 SQL 操作分发到 N 个独立的数据库分片。
//
// 组成：
//   - Locator：key -> 分片下标，纯函数，默认取 MD5 前 4 字节取模
//   - Registry：每个分片一个连接池，负责初始化、按需重连和连通性探测
//   - Executor：单分片执行（瞬时连接错误时重连并重试）、全分片扇出、按 key 执行
//   - Monitor：后台定期探测所有分片，触发断开分片的重连
//
// 基本使用：
//
//	reg, err := shard.NewRegistry(cfg, shard.WithLogger(logger), shard.WithMeter(meter))
//	if err := reg.Initialize(ctx); err != nil { ... }
//	defer reg.Close()
//
//	exec, _ := shard.NewExecutor(reg, shard.WithLogger(logger))
//	res, err := exec.ExecuteByKey(ctx, "user-aaaa1111",
//		"INSERT INTO users (user_id, name) VALUES (?, ?)", "user-aaaa1111", "Alice")
//
//	mon := shard.NewMonitor(reg, shard.WithLogger(logger))
//	mon.Start(ctx)
//	defer mon.Stop()
//
// 分片数量在进程生命周期内固定，分片配置加载后不再修改。
package shard
