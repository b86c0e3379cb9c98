package worker

// Mode 描述一类请求读网络与读缓存的先后顺序。
type Mode string

const (
	ModeNetworkFirst Mode = "network-first"
	ModeCacheFirst   Mode = "cache-first"
)

// StoreRole 指明条目写入哪一个具名存储。
type StoreRole string

const (
	StoreShell   StoreRole = "shell"
	StoreRuntime StoreRole = "runtime"
)

// StrategyProfile 描述某类请求的缓存读写策略，供路由与诊断端共用。
type StrategyProfile struct {
	Class       Class       `json:"-"`
	ClassName   string      `json:"class"`
	Mode        Mode        `json:"mode"`
	WriteStore  StoreRole   `json:"write_store"`
	LookupOrder []StoreRole `json:"lookup_order"`
	// FallbackDocument 表示网络与精确缓存均失败时可以返回兜底文档。
	FallbackDocument bool `json:"fallback_document"`
	// Revalidate 表示命中缓存后调度后台刷新。
	Revalidate  bool   `json:"revalidate"`
	Description string `json:"description"`
}

var strategyTable = []StrategyProfile{
	{
		Class:       ClassRateData,
		Mode:        ModeNetworkFirst,
		WriteStore:  StoreRuntime,
		LookupOrder: []StoreRole{StoreRuntime},
		Description: "live rates when online, last cached rates for the exact request when offline",
	},
	{
		Class:            ClassShell,
		Mode:             ModeNetworkFirst,
		WriteStore:       StoreShell,
		LookupOrder:      []StoreRole{StoreShell},
		FallbackDocument: true,
		Description:      "fresh shell when online, cached shell or the fallback document when offline",
	},
	{
		Class:            ClassOther,
		Mode:             ModeCacheFirst,
		WriteStore:       StoreRuntime,
		LookupOrder:      []StoreRole{StoreRuntime, StoreShell},
		FallbackDocument: true,
		Revalidate:       true,
		Description:      "cached copy first with stale-while-revalidate, network on miss",
	},
}

// Strategies 返回按 Class 排序的策略表副本。
func Strategies() []StrategyProfile {
	result := make([]StrategyProfile, len(strategyTable))
	for i, profile := range strategyTable {
		profile.ClassName = profile.Class.String()
		profile.LookupOrder = append([]StoreRole(nil), profile.LookupOrder...)
		result[i] = profile
	}
	return result
}

// StrategyFor 返回指定分类的策略。
func StrategyFor(class Class) (StrategyProfile, bool) {
	for _, profile := range Strategies() {
		if profile.Class == class {
			return profile, true
		}
	}
	return StrategyProfile{}, false
}
