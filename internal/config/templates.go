package config

import (
	"fmt"
	"image"

	"qrauth/codehub/internal/render"
)

// RenderTemplates turns the templates section into renderer options.
// Templates with logo enabled share the image at render.logo_path.
func (c *Config) RenderTemplates() (map[string]render.Options, error) {
	var logo image.Image
	out := make(map[string]render.Options, len(c.Templates))
	for name, t := range c.Templates {
		opts := render.Options{
			Size:            t.Size,
			ForegroundColor: t.ForegroundColor,
			BackgroundColor: t.BackgroundColor,
			LogoRatio:       t.LogoRatio,
		}
		if t.Logo {
			if c.Render.LogoPath == "" {
				return nil, fmt.Errorf("template %q wants a logo but render.logo_path is empty", name)
			}
			if logo == nil {
				img, err := render.LoadLogo(c.Render.LogoPath)
				if err != nil {
					return nil, err
				}
				logo = img
			}
			opts.Logo = logo
		}
		out[name] = opts
	}
	return out, nil
}
