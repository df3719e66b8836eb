package httpapi

import (
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Scoreline Leaderboard</title>
  <style>
    :root {
      --ink: #14212b;
      --paper: #f6f3ec;
      --card: #fffdf8;
      --line: #d8cfbd;
      --accent: #2a8f6d;
      --accent-2: #e0893c;
      --muted: #6e7a82;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: linear-gradient(140deg, #fff9ef 0%, #eef6f2 55%, #fffdf8 100%);
      min-height: 100vh;
      padding: 24px;
    }
    .shell { max-width: 720px; margin: 0 auto; display: grid; gap: 14px; }
    .bar, .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 16px;
      padding: 16px;
    }
    h1 { margin: 0; font-size: 1.4rem; letter-spacing: 0.02em; }
    .hint { color: var(--muted); font-size: 0.85rem; margin: 4px 0 0; }
    input, button {
      font: inherit;
      padding: 8px 10px;
      border-radius: 10px;
      border: 1px solid var(--line);
    }
    button { background: var(--accent); color: #fff; border: 0; cursor: pointer; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 8px 6px; border-bottom: 1px solid var(--line); }
    td.rank { font-weight: 700; color: var(--accent-2); width: 3rem; }
    td.score { font-variant-numeric: tabular-nums; }
    #status { font-size: 0.85rem; color: var(--muted); }
    .celebration {
      background: #fff4e3;
      border: 1px solid var(--accent-2);
      border-radius: 10px;
      padding: 8px 10px;
      font-size: 0.9rem;
    }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Scoreline Leaderboard</h1>
      <p class="hint">Live XP rankings, pushed over the leaderboard channel.</p>
    </div>
    <div class="card">
      <input id="token" placeholder="bearer token" size="32" />
      <input id="org" placeholder="organization id" size="18" />
      <button onclick="connect()">Connect</button>
      <p id="status">disconnected</p>
    </div>
    <div class="card">
      <table>
        <thead><tr><th></th><th>Rep</th><th>XP</th></tr></thead>
        <tbody id="rows"></tbody>
      </table>
    </div>
    <div id="celebrations" class="shell"></div>
  </div>
  <script>
    let ws = null;
    let heartbeatTimer = null;

    function setStatus(text) {
      document.getElementById('status').textContent = text;
    }

    function connect() {
      if (ws) { ws.close(); }
      const token = document.getElementById('token').value.trim();
      const org = document.getElementById('org').value.trim();
      const scheme = location.protocol === 'https:' ? 'wss' : 'ws';
      ws = new WebSocket(scheme + '://' + location.host + '/ws?token=' + encodeURIComponent(token));
      ws.onopen = () => {
        setStatus('connected, joining ' + org);
        ws.send(JSON.stringify({ type: 'join', channel: 'leaderboard', orgId: org }));
        ws.send(JSON.stringify({ type: 'join', channel: 'warroom', orgId: org }));
        heartbeatTimer = setInterval(() => {
          ws.send(JSON.stringify({ type: 'heartbeat' }));
        }, 20000);
      };
      ws.onclose = () => {
        setStatus('disconnected');
        if (heartbeatTimer) { clearInterval(heartbeatTimer); heartbeatTimer = null; }
      };
      ws.onmessage = (event) => {
        const msg = JSON.parse(event.data);
        if (msg.type === 'rankings') { render(msg.rankings); }
        if (msg.type === 'joined') { setStatus('joined ' + msg.channel + ' for ' + msg.orgId); }
        if (msg.type === 'heartbeat_ack') { setStatus('live (server ' + msg.serverTime + ')'); }
        if (msg.type === 'celebration') { celebrate(msg); }
        if (msg.type === 'error') { setStatus('error: ' + msg.message); }
      };
    }

    function render(rankings) {
      const rows = document.getElementById('rows');
      rows.innerHTML = '';
      for (const entry of rankings) {
        const tr = document.createElement('tr');
        const name = entry.name || entry.participantId;
        tr.innerHTML = '<td class="rank">#' + entry.rank + '</td><td>' + name +
          '</td><td class="score">' + entry.score + '</td>';
        rows.appendChild(tr);
      }
    }

    function celebrate(msg) {
      const box = document.createElement('div');
      box.className = 'celebration';
      box.textContent = msg.repId + ' just landed a qualified call (+' + msg.delta + ' XP)';
      const host = document.getElementById('celebrations');
      host.prepend(box);
      setTimeout(() => box.remove(), 12000);
    }
  </script>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}
