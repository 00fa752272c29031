// Package allocation 号码区间分配与冲突检测
package allocation

import (
	"cmp"
	"slices"
)

// Range 闭区间 [Start, End]
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Valid 区间是否非空
func (r Range) Valid() bool {
	return r.Start <= r.End
}

// Len 区间包含的 ID 数量
func (r Range) Len() int64 {
	if !r.Valid() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains 判断 ID 是否落在区间内
func (r Range) Contains(id int64) bool {
	return r.Valid() && id >= r.Start && id <= r.End
}

// Overlaps 判断两个闭区间是否相交
func (r Range) Overlaps(other Range) bool {
	return r.Valid() && other.Valid() && r.Start <= other.End && other.Start <= r.End
}

// Intersect 返回两个区间的交集，不相交时返回无效区间
func (r Range) Intersect(other Range) Range {
	return Range{Start: max(r.Start, other.Start), End: min(r.End, other.End)}
}

// Bounds 设备分配的原始边界，任一端可能缺失
type Bounds struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// Resolve 转换为闭区间，边界缺失或倒置时返回 false
func (b Bounds) Resolve() (Range, bool) {
	if b.Start == nil || b.End == nil {
		return Range{}, false
	}
	r := Range{Start: *b.Start, End: *b.End}
	return r, r.Valid()
}

// Conflict 两个设备分配区间的重叠
type Conflict struct {
	DeviceA string `json:"device_a"`
	DeviceB string `json:"device_b"`
	RangeA  Range  `json:"range_a"`
	RangeB  Range  `json:"range_b"`
	Overlap Range  `json:"overlap"`
}

// DeviceRange 设备与其分配区间
type DeviceRange struct {
	DeviceID string `json:"device_id"`
	Range    Range  `json:"range"`
}

// FindConflicts 检测设备分配区间的两两重叠。
// 缺少边界或起点大于终点的分配会被忽略。结果按起点排序，起点相同时按设备ID排序。
func FindConflicts(assignments map[string]Bounds) []Conflict {
	items := make([]DeviceRange, 0, len(assignments))
	for deviceID, bounds := range assignments {
		r, ok := bounds.Resolve()
		if !ok {
			continue
		}
		items = append(items, DeviceRange{DeviceID: deviceID, Range: r})
	}
	return SweepConflicts(items)
}

// SweepConflicts 对已解析的区间执行排序扫描
func SweepConflicts(items []DeviceRange) []Conflict {
	sorted := make([]DeviceRange, 0, len(items))
	for _, item := range items {
		if item.Range.Valid() {
			sorted = append(sorted, item)
		}
	}
	slices.SortFunc(sorted, func(a, b DeviceRange) int {
		if c := cmp.Compare(a.Range.Start, b.Range.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DeviceID, b.DeviceID); c != 0 {
			return c
		}
		return cmp.Compare(a.Range.End, b.Range.End)
	})

	conflicts := make([]Conflict, 0)
	for i := 0; i < len(sorted); i++ {
		current := sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			next := sorted[j]
			// 后续起点只会更大
			if next.Range.Start > current.Range.End {
				break
			}
			conflicts = append(conflicts, Conflict{
				DeviceA: current.DeviceID,
				DeviceB: next.DeviceID,
				RangeA:  current.Range,
				RangeB:  next.Range,
				Overlap: current.Range.Intersect(next.Range),
			})
		}
	}
	return conflicts
}

// NextFreeRange 计算紧随已有区间之后的下一段区间。
// 没有已有区间时从 0 开始；count <= 0 时返回无效区间。
func NextFreeRange(existing []Range, count int64) Range {
	start := int64(0)
	found := false
	for _, r := range existing {
		if !r.Valid() {
			continue
		}
		if !found || r.End+1 > start {
			start = r.End + 1
			found = true
		}
	}
	if start < 0 {
		start = 0
	}
	return Range{Start: start, End: start + count - 1}
}

// BulkAssign 为多个设备依次分配连续且互不重叠的区间
func BulkAssign(deviceIDs []string, existing []Range, count int64) []DeviceRange {
	if count <= 0 || len(deviceIDs) == 0 {
		return []DeviceRange{}
	}
	taken := slices.Clone(existing)
	result := make([]DeviceRange, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		next := NextFreeRange(taken, count)
		result = append(result, DeviceRange{DeviceID: deviceID, Range: next})
		taken = append(taken, next)
	}
	return result
}
