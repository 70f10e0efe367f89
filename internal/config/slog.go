// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"

	"github.com/kortschak/still/internal/slogext"
)

type changeValue struct {
	Change
}

func (v changeValue) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", v.Event.Name),
		slog.String("op", v.Event.Op.String()),
	}
	if v.Config != nil && v.Config.Element != nil {
		attrs = append(attrs,
			slog.String("element", v.Config.Element.Name),
			slog.Any("source", slogext.URI(v.Config.Element.Source)),
		)
		if v.Config.Sum != nil {
			attrs = append(attrs, slog.Any("sum", sumValue{*v.Config.Sum}))
		}
	}
	if v.Err != nil {
		attrs = append(attrs, slog.Any("error", v.Err))
	}
	return slog.GroupValue(attrs...)
}

type sumValue struct {
	Sum
}

func (v sumValue) LogValue() slog.Value {
	if v.Sum == (Sum{}) {
		return slog.StringValue("")
	}
	return slog.StringValue(v.Sum.String())
}
