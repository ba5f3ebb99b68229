package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/pkg/manifest"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		file manifest.File
		want []manifest.Dependency
		err  error
	}{
		"go.mod": {
			file: manifest.File{Path: "/repo/go.mod", Content: []byte(`module example.com/app

go 1.24

require (
	github.com/spf13/cobra v1.9.1
	github.com/stretchr/testify v1.10.0 // indirect
)
`)},
			want: []manifest.Dependency{
				{Name: "github.com/spf13/cobra", Version: "v1.9.1"},
				{Name: "github.com/stretchr/testify", Version: "v1.10.0"},
				{Name: "go", Version: "1.24"},
			},
		},
		"package.json with comments": {
			file: manifest.File{Path: "package.json", Content: []byte(`{
	// Runtime.
	"dependencies": {"react": "^18.2.0", "next": "14.1.0",},
	"devDependencies": {"typescript": "~5.4.0"},
}`)},
			want: []manifest.Dependency{
				{Name: "next", Version: "14.1.0"},
				{Name: "react", Version: "^18.2.0"},
				{Name: "typescript", Version: "~5.4.0"},
			},
		},
		"composer.json": {
			file: manifest.File{Path: "composer.json", Content: []byte(`{"require": {"laravel/framework": "^11.0"}, "require-dev": {"phpunit/phpunit": "^10"}}`)},
			want: []manifest.Dependency{
				{Name: "laravel/framework", Version: "^11.0"},
				{Name: "phpunit/phpunit", Version: "^10"},
			},
		},
		"Cargo.toml": {
			file: manifest.File{Path: "Cargo.toml", Content: []byte(`[package]
name = "app"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
tokio = "1"

[dev-dependencies]
local = { path = "../local" }
`)},
			want: []manifest.Dependency{
				{Name: "local"},
				{Name: "serde", Version: "1.0"},
				{Name: "tokio", Version: "1"},
			},
		},
		"pyproject.toml": {
			file: manifest.File{Path: "pyproject.toml", Content: []byte(`[project]
name = "app"
dependencies = ["Django>=5.0", "requests[socks] ==2.31 ; python_version > '3.8'"]

[project.optional-dependencies]
test = ["pytest"]

[tool.poetry.dependencies]
Flask_Login = "^0.6"
`)},
			want: []manifest.Dependency{
				{Name: "django", Version: ">=5.0"},
				{Name: "flask-login", Version: "^0.6"},
				{Name: "pytest"},
				{Name: "requests", Version: "==2.31"},
			},
		},
		"requirements.txt": {
			file: manifest.File{Path: "requirements.txt", Content: []byte(`# web
fastapi==0.110.0  # api
-r base.txt

SQLAlchemy
pydantic @ https://example.com/pydantic.whl
`)},
			want: []manifest.Dependency{
				{Name: "fastapi", Version: "==0.110.0"},
				{Name: "pydantic"},
				{Name: "sqlalchemy"},
			},
		},
		"hashed requirements.txt": {
			file: manifest.File{Path: "requirements.txt", Content: []byte(`django==4.2.7 \
    --hash=sha256:abc \
    --hash=sha256:def
    # via -r requirements.in
requests==2.31.0 \
    --hash=sha256:123
`)},
			want: []manifest.Dependency{
				{Name: "django", Version: "==4.2.7"},
				{Name: "requests", Version: "==2.31.0"},
			},
		},
		"requirements.txt trailing continuation": {
			file: manifest.File{Path: "requirements.txt", Content: []byte("flask>=3.0 \\")},
			want: []manifest.Dependency{
				{Name: "flask", Version: ">=3.0"},
			},
		},
		"Gemfile": {
			file: manifest.File{Path: "Gemfile", Content: []byte(`source "https://rubygems.org"
gem "rails", "~> 7.1"
gem 'pg'
group :test do
  gem "rspec-rails"
end
`)},
			want: []manifest.Dependency{
				{Name: "pg"},
				{Name: "rails", Version: "~> 7.1"},
				{Name: "rspec-rails"},
			},
		},
		"pubspec.yaml": {
			file: manifest.File{Path: "pubspec.yaml", Content: []byte(`name: app
dependencies:
  flutter:
    sdk: flutter
  http: ^1.2.0
dev_dependencies:
  lints:
`)},
			want: []manifest.Dependency{
				{Name: "flutter"},
				{Name: "http", Version: "^1.2.0"},
				{Name: "lints"},
			},
		},
		"malformed json": {
			file: manifest.File{Path: "package.json", Content: []byte(`{"dependencies": [`)},
			err:  manifest.ErrMalformed,
		},
		"malformed toml": {
			file: manifest.File{Path: "Cargo.toml", Content: []byte(`[dependencies`)},
			err:  manifest.ErrMalformed,
		},
		"malformed go.mod": {
			file: manifest.File{Path: "go.mod", Content: []byte("module x\n\nrequire github.com/a\n")},
			err:  manifest.ErrMalformed,
		},
		"malformed requirement": {
			file: manifest.File{Path: "requirements.txt", Content: []byte("===\n")},
			err:  manifest.ErrMalformed,
		},
		"unknown file": {
			file: manifest.File{Path: "build.gradle"},
			err:  manifest.ErrNoParser,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := manifest.Parse(tc.file)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDependencyMap(t *testing.T) {
	t.Parallel()

	decls := manifest.ParseAll([]manifest.File{
		{Path: "package.json", Content: []byte(`{"dependencies": {"react": "18.0.0"}}`)},
		{Path: "Cargo.toml", Content: []byte(`[dependencies`)},
		{Path: "composer.json", Content: []byte(`{"require": {"react": "17.0.0"}}`)},
	})
	require.Len(t, decls, 3)
	require.Error(t, decls[1].Err)

	assert.Equal(t, map[string]string{"react": "18.0.0"}, manifest.DependencyMap(decls))
}

func TestReadRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Gemfile"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte(""), 0o600))

	files, err := manifest.ReadRoot(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "Gemfile", files[0].Name())
	assert.Equal(t, "go.mod", files[1].Name())
	assert.Equal(t, []byte("module x\n"), files[1].Content)
}

func TestIsDeclarationFile(t *testing.T) {
	t.Parallel()

	assert.True(t, manifest.IsDeclarationFile("/a/b/package.json"))
	assert.False(t, manifest.IsDeclarationFile("/a/b/main.go"))
	assert.Contains(t, manifest.Names(), "pyproject.toml")
}
