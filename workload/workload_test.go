/*
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package workload_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/I-asked/stackless"
	"github.com/I-asked/stackless/workload"
)

func TestLoadRejectsUnknownKind(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.json", []byte(`{
		"tasklets": [{"name": "x", "kind": "nonsense"}]
	}`), 0o644))

	_, err := workload.Load(fs, "bad.json")
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dup.json", []byte(`{
		"tasklets": [
			{"name": "a", "kind": "generate", "count": 1, "out": "c"},
			{"name": "a", "kind": "sink", "in": "c"}
		]
	}`), 0o644))

	_, err := workload.Load(fs, "dup.json")
	assert.Error(t, err)
}

func TestDemoScriptRunsPipelineToCompletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "demo.json", []byte(workload.DemoScript), 0o644))

	script, err := workload.Load(fs, "demo.json")
	require.NoError(t, err)
	assert.Equal(t, "demo", script.Name)
	assert.ElementsMatch(t, []string{"raw", "doubled", "final"}, script.ChannelNames())

	rt, err := stackless.New(stackless.Options{})
	require.NoError(t, err)
	_, err = rt.Init()
	require.NoError(t, err)

	collector := workload.NewCollector()
	_, err = workload.Build(rt, script, collector)
	require.NoError(t, err)

	require.NoError(t, workload.Drive(rt))

	got := collector.Values("collect")
	require.Len(t, got, 8)
	for i, v := range got {
		assert.Equal(t, i*2, v)
	}
}
