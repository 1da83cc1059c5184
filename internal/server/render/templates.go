package render

const baseCSS = `body{font-family:system-ui,-apple-system,"Segoe UI",sans-serif;margin:2rem auto;max-width:960px;padding:0 1rem;color:#222}
h1{font-size:1.4rem;border-bottom:1px solid #ddd;padding-bottom:.5rem}
table{border-collapse:collapse;width:100%}
th,td{text-align:left;padding:.35rem .6rem;border-bottom:1px solid #eee}
th{background:#f6f6f6}
td.num{text-align:right;font-variant-numeric:tabular-nums}
a{color:#0b57d0;text-decoration:none}
a:hover{text-decoration:underline}
footer{margin-top:2rem;color:#888;font-size:.85rem}
.card{display:inline-block;min-width:180px;margin:.4rem;padding:.8rem;border:1px solid #e3e3e3;border-radius:6px}
.card b{display:block;font-size:1.3rem}`

const listingTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Index of {{.Path}}</title>
<style>{{css}}</style>
</head>
<body>
<h1>Index of {{.Path}}</h1>
<table>
<thead><tr><th>Name</th><th>Size</th><th>Modified</th></tr></thead>
<tbody>
{{- if .Parent}}
<tr><td><a href="{{.Parent}}">../</a></td><td class="num">-</td><td></td></tr>
{{- end}}
{{- range .Entries}}
<tr><td><a href="./{{.Href}}">{{.Name}}</a></td><td class="num">{{if .IsDir}}-{{else}}{{bytes .Size}}{{end}}</td><td>{{date .ModTime}}</td></tr>
{{- end}}
</tbody>
</table>
<footer>{{server}}</footer>
</body>
</html>
`

const statusTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Server Status</title>
<meta http-equiv="refresh" content="30">
<style>{{css}}</style>
</head>
<body>
<h1>{{.ServerName}} status</h1>
<div>
<div class="card">Uptime<b>{{uptime .Uptime}}</b></div>
<div class="card">Total requests<b>{{comma .TotalRequests}}</b></div>
<div class="card">Requests / second<b>{{printf "%.2f" .RequestsPerSecond}}</b></div>
<div class="card">Avg response<b>{{printf "%.2f" .AverageResponseMs}} ms</b></div>
<div class="card">Active connections<b>{{.ActiveConnections}}</b></div>
<div class="card">Queued connections<b>{{.QueuedConnections}}</b></div>
</div>
<h2>Responses</h2>
<table>
<thead><tr><th>Class</th><th>Count</th></tr></thead>
<tbody>
{{- range $class, $n := .ByStatusClass}}
<tr><td>{{$class}}</td><td class="num">{{comma $n}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>File cache</h2>
{{- if .Cache.Enabled}}
<table>
<tbody>
<tr><td>Entries</td><td class="num">{{.Cache.Size}} / {{.Cache.MaxSize}}</td></tr>
<tr><td>Memory</td><td class="num">{{bytes .Cache.Bytes}}</td></tr>
<tr><td>Hit ratio</td><td class="num">{{printf "%.1f" (percent .Cache.HitRatio)}}%</td></tr>
<tr><td>Hits / misses</td><td class="num">{{comma .Cache.Hits}} / {{comma .Cache.Misses}}</td></tr>
<tr><td>Evictions</td><td class="num">{{comma .Cache.Evictions}}</td></tr>
</tbody>
</table>
{{- else}}
<p>Disabled</p>
{{- end}}
{{- with .Uploads}}
<h2>Uploads</h2>
<p>{{.Files}} files in {{.Submissions}} submissions</p>
{{- if .Recent}}
<table>
<thead><tr><th>File</th><th>Type</th><th>Size</th><th>Digest</th><th>Received</th></tr></thead>
<tbody>
{{- range .Recent}}
<tr><td>{{.FileName}}</td><td>{{.ContentType}}</td><td class="num">{{bytes .Size}}</td><td><code>{{printf "%.12s" .Digest}}</code></td><td>{{date .CreatedAt}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
{{- end}}
<footer>{{.ServerName}} {{.Version}} &middot; started {{date .StartedAt}} &middot; {{.Workers}} workers</footer>
</body>
</html>
`

const errorTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Code}} {{.Reason}}</title>
<style>{{css}}</style>
</head>
<body>
<h1>{{.Code}} {{.Reason}}</h1>
{{- if .Detail}}
<p>{{.Detail}}</p>
{{- end}}
<footer>{{server}}</footer>
</body>
</html>
`
