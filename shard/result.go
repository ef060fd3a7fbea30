package shard

// Row 一行结果，列名到值
type Row = map[string]any

// Result 查询结果
type Result struct {
	// Rows 行记录，扇出查询按分片顺序拼接
	Rows []Row
	// RowsAffected 写语句影响的行数，扇出时为各分片之和
	RowsAffected int64
	// Failures 扇出查询中失败的分片
	Failures []ShardFailure
}

// Empty 没有任何行
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}
