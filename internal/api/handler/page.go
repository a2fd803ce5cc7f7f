package handler

// chatPage is the single-file chat UI. It renders the HTML fragments produced
// by the formatter, so the class names here must stay in sync with it.
const chatPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>采购数据智能助手</title>
<style>
  body { font-family: "Helvetica Neue", Arial, "PingFang SC", "Microsoft YaHei", sans-serif;
         margin: 0; background: #f4f6f8; color: #2c3e50; }
  .wrap { max-width: 960px; margin: 0 auto; padding: 16px; display: flex;
          flex-direction: column; height: 100vh; box-sizing: border-box; }
  h1 { font-size: 20px; margin: 4px 0 12px; }
  #messages { flex: 1; overflow-y: auto; background: #fff; border: 1px solid #dde3e8;
              border-radius: 8px; padding: 16px; }
  .msg { margin-bottom: 14px; line-height: 1.6; }
  .msg.user { text-align: right; }
  .msg.user .bubble { background: #2f80ed; color: #fff; }
  .bubble { display: inline-block; max-width: 85%; padding: 10px 14px;
            border-radius: 10px; background: #eef2f5; text-align: left; }
  .msg.error .bubble { background: #fdecea; color: #b71c1c; }
  form { display: flex; gap: 8px; margin-top: 12px; }
  input[type=text] { flex: 1; padding: 10px 12px; border: 1px solid #cfd8df;
                     border-radius: 6px; font-size: 14px; }
  button { padding: 10px 18px; border: 0; border-radius: 6px; background: #2f80ed;
           color: #fff; font-size: 14px; cursor: pointer; }
  button:disabled { background: #9eb8d8; }
  .hint { font-size: 12px; color: #8a99a8; margin-top: 6px; }

  .result-header { font-weight: 600; margin-bottom: 8px; }
  .tag-overview { margin: 8px 0; }
  .tag-badge { display: inline-block; background: #e8f0fe; color: #1a56b0;
               border-radius: 12px; padding: 2px 10px; margin: 2px 4px 2px 0;
               font-size: 12px; }
  .amount-summary { font-size: 13px; color: #5d6d7e; margin: 6px 0; }
  .narrative { margin: 10px 0; }
  .technical-section { border-top: 1px dashed #cfd8df; margin-top: 12px; padding-top: 10px; }
  .technical-section pre { background: #f7f9fa; border: 1px solid #e3e8ec;
                           border-radius: 6px; padding: 10px; overflow-x: auto;
                           font-size: 12px; }
  .copy-btn { font-size: 12px; padding: 3px 10px; background: #5d6d7e; }
  table { border-collapse: collapse; width: 100%; font-size: 12px; margin: 8px 0; }
  th, td { border: 1px solid #dde3e8; padding: 5px 8px; text-align: left; }
  th { background: #f0f3f6; }
  td.num { text-align: right; }
  td.null { color: #b0bcc6; }
</style>
</head>
<body>
<div class="wrap">
  <h1>采购数据智能助手</h1>
  <div id="messages"></div>
  <form id="chat-form">
    <input type="text" id="msg" placeholder="输入消息，数据查询请以 #psql 开头" autocomplete="off">
    <button type="submit" id="send">发送</button>
  </form>
  <div class="hint">示例：#psql 统计各采购类型的项目数量和预算总额</div>
</div>
<script>
const messages = document.getElementById('messages');
const form = document.getElementById('chat-form');
const input = document.getElementById('msg');
const send = document.getElementById('send');
const sessionId = 'web-' + Math.random().toString(36).slice(2, 10);

function addMessage(cls, html) {
  const div = document.createElement('div');
  div.className = 'msg ' + cls;
  div.innerHTML = '<div class="bubble">' + html + '</div>';
  messages.appendChild(div);
  messages.scrollTop = messages.scrollHeight;
}

function escapeHTML(s) {
  const d = document.createElement('div');
  d.textContent = s;
  return d.innerHTML;
}

messages.addEventListener('click', (e) => {
  const btn = e.target.closest('.copy-btn');
  if (btn && btn.dataset.sql) {
    navigator.clipboard.writeText(btn.dataset.sql);
    btn.textContent = '已复制';
    setTimeout(() => { btn.textContent = '复制 SQL'; }, 1500);
  }
});

form.addEventListener('submit', async (e) => {
  e.preventDefault();
  const text = input.value.trim();
  if (!text) return;
  addMessage('user', escapeHTML(text));
  input.value = '';
  send.disabled = true;
  try {
    const res = await fetch('/chat', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({message: text, session_id: sessionId})
    });
    const data = await res.json();
    if (data.status === 'success') {
      addMessage('assistant', data.message);
    } else {
      addMessage('error', data.message || '请求失败，请稍后重试。');
    }
  } catch (err) {
    addMessage('error', '网络错误，请稍后重试。');
  } finally {
    send.disabled = false;
    input.focus();
  }
});
</script>
</body>
</html>
`
