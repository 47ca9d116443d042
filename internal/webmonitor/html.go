package webmonitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Object Detection with Voice</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            margin: 0;
            min-height: 100vh;
            font-family: Arial, sans-serif;
            color: #fff;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        h1 { margin: 32px 0 16px; text-shadow: 0 2px 4px rgba(0, 0, 0, 0.3); }
        .controls { display: flex; gap: 12px; margin-bottom: 20px; }
        button {
            padding: 12px 28px;
            font-size: 16px;
            border: none;
            border-radius: 24px;
            cursor: pointer;
            color: #fff;
            transition: transform 0.1s;
        }
        button:active { transform: scale(0.97); }
        #start-btn { background: #2ecc71; }
        #stop-btn { background: #e74c3c; }
        #status { margin-bottom: 16px; font-size: 14px; opacity: 0.9; }
        #video {
            display: none;
            border-radius: 12px;
            box-shadow: 0 8px 24px rgba(0, 0, 0, 0.35);
            background: #000;
        }
        #detections {
            list-style: none;
            padding: 0;
            margin: 20px 0;
            width: 640px;
            max-width: 95vw;
            font-size: 13px;
        }
        #detections li {
            background: rgba(255, 255, 255, 0.12);
            border-radius: 6px;
            padding: 6px 10px;
            margin-bottom: 4px;
        }
        .spoken { font-weight: bold; color: #ffeaa7; }
    </style>
</head>
<body>
    <h1>Object Detection with Voice</h1>
    <div class="controls">
        <button id="start-btn" onclick="startCamera()">Start Camera</button>
        <button id="stop-btn" onclick="stopCamera()">Stop Camera</button>
    </div>
    <div id="status">Camera is stopped</div>
    <img id="video" width="640" height="480" alt="Video stream">
    <ul id="detections"></ul>

    <script>
        const video = document.getElementById('video');
        const statusEl = document.getElementById('status');
        const list = document.getElementById('detections');
        let events = null;

        async function startCamera() {
            const res = await fetch('/start');
            statusEl.textContent = await res.text();
            video.src = '/video?t=' + Date.now();
            video.style.display = 'block';
            listen();
        }

        async function stopCamera() {
            const res = await fetch('/stop');
            statusEl.textContent = await res.text();
            video.removeAttribute('src');
            video.style.display = 'none';
            if (events) {
                events.close();
                events = null;
            }
        }

        function listen() {
            if (events || !window.EventSource) {
                return;
            }
            events = new EventSource('/api/detections/stream');
            events.onmessage = (msg) => {
                const ev = JSON.parse(msg.data);
                const accepted = ev.detections.filter((d) => d.accepted);
                if (accepted.length === 0) {
                    return;
                }
                const li = document.createElement('li');
                const labels = accepted
                    .map((d) => d.class_name + ' ' + d.confidence.toFixed(2))
                    .join(', ');
                li.textContent = new Date(ev.timestamp * 1000).toLocaleTimeString() + '  ' + labels;
                if (ev.announced.length > 0) {
                    const spoken = document.createElement('span');
                    spoken.className = 'spoken';
                    spoken.textContent = '  \u{1F50A} ' + ev.announced.join(', ');
                    li.appendChild(spoken);
                }
                list.prepend(li);
                while (list.children.length > 20) {
                    list.removeChild(list.lastChild);
                }
            };
        }
    </script>
</body>
</html>
`
