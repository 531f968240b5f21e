package vectorstore

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

// Plugins are shared objects built with `go build -buildmode=plugin`
// against this module. A plugin exports
//
//	var Factory vectorstore.Factory
//
// which is installed under the "plugin" backend name on first open.
const pluginFactorySymbol = "Factory"

var pluginOnce sync.Once

func loadPlugin(path string) error {
	var err error
	pluginOnce.Do(func() {
		var p *plugin.Plugin
		p, err = plugin.Open(path)
		if err != nil {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("failed to open vector store plugin %s", path), err)
			return
		}
		sym, lookupErr := p.Lookup(pluginFactorySymbol)
		if lookupErr != nil {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("plugin %s does not export %s", path, pluginFactorySymbol), lookupErr)
			return
		}
		factory, ok := sym.(*Factory)
		if !ok || *factory == nil {
			err = domain.NewDomainError(domain.ErrCodeConfiguration,
				fmt.Sprintf("plugin %s exports %s with the wrong type", path, pluginFactorySymbol))
			return
		}
		Register(config.BackendPlugin, *factory)
	})
	return err
}
