package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 origin/请求分类/响应来源字段，供代理请求日志复用。
func RequestFields(origin, domain, class, source, version string) logrus.Fields {
	return logrus.Fields{
		"origin":  origin,
		"domain":  domain,
		"class":   class,
		"source":  source,
		"version": version,
	}
}

// WorkerFields 描述缓存路由代际的生命周期事件（install/activate/prune 等）。
func WorkerFields(action, version, state string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
		"state":   state,
	}
}
