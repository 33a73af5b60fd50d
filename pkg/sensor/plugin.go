//go:build linux

package sensor

import "plugin"

// pluginLoader opens modules built with -buildmode=plugin. Go cannot unload
// a plugin, so a rejected module stays mapped for the life of the process.
type pluginLoader struct{}

func (pluginLoader) Open(path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginModule{p: p}, nil
}

type pluginModule struct {
	p *plugin.Plugin
}

func (m pluginModule) Lookup(symbol string) (any, error) {
	return m.p.Lookup(symbol)
}
